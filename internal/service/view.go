package service

import (
	"time"

	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/storage/keyname"
)

// FileView — представление записи о файле для клиента.
type FileView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Mime     string   `json:"mime"`
	Size     int64    `json:"size"`
	Tags     []string `json:"tags"`
	IsPublic bool     `json:"is_public"`
	State    string   `json:"state"`
	// CreatedAt, UpdatedAt — RFC 3339, UTC
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	// Path — ключ хранения без префикса владельца
	Path           string `json:"path"`
	ThumbAvailable bool   `json:"thumb_available"`
}

// NewFileView строит представление записи.
func NewFileView(rec *model.FileRecord, thumbAvailable bool) FileView {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return FileView{
		ID:             rec.ID,
		Name:           rec.Name,
		Mime:           rec.Mime,
		Size:           rec.Size,
		Tags:           tags,
		IsPublic:       rec.IsPublic,
		State:          string(rec.State),
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      rec.UpdatedAt.UTC().Format(time.RFC3339),
		Path:           keyname.RelativePath(rec.StorageKey),
		ThumbAvailable: thumbAvailable,
	}
}
