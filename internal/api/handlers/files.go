// files.go — обработчики операций над файлами /api/v1/files.
// Загрузка читается потоково через multipart.Reader, без буферизации
// всего тела в памяти или во временных файлах.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/auth"
	"github.com/bigkaa/filevault/internal/domain/lifecycle"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/service"
)

const (
	// multipartOverhead — запас на заголовки частей и текстовые поля формы
	multipartOverhead = 1 << 20
	// maxFieldBytes — лимит текстового поля формы (tags, folder)
	maxFieldBytes = 64 << 10
)

// fileResponse — ответ с одной записью.
type fileResponse struct {
	File *service.FileView `json:"file"`
}

// okResponse — ответ операций без тела.
type okResponse struct {
	OK bool `json:"ok"`
}

// visibilityRequest — тело POST /files/{id}/visibility.
type visibilityRequest struct {
	IsPublic *bool `json:"is_public"`
}

// patchRequest — тело PATCH /files/{id}. Отсутствующее поле не меняется.
type patchRequest struct {
	Name *string   `json:"name"`
	Tags *[]string `json:"tags"`
}

// principal возвращает пользователя запроса или пишет 401.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil, false
	}
	return p, true
}

// UploadFile — POST /api/v1/files/upload.
// Поля формы: file (обязательно), tags (JSON-список), folder.
// Текстовые поля учитываются, только если идут до части file.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Ожидается multipart/form-data")
		return
	}

	var tags, folder string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				apierrors.FileTooLarge(w, fmt.Sprintf("Превышен максимальный размер запроса: %d байт", maxErr.Limit))
				return
			}
			apierrors.ValidationError(w, "Некорректное multipart-тело: "+err.Error())
			return
		}

		switch part.FormName() {
		case "tags":
			tags, err = readField(part)
		case "folder":
			folder, err = readField(part)
		case "file":
			view, upErr := h.upload.Upload(r.Context(), service.UploadRequest{
				OwnerID:     p.UserID,
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Folder:      folder,
				Tags:        tags,
				Body:        part,
			})
			part.Close()
			if upErr != nil {
				h.writeServiceError(w, r, upErr)
				return
			}
			writeJSON(w, http.StatusCreated, fileResponse{File: view})
			return
		}
		part.Close()
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
	}

	apierrors.ValidationError(w, "Отсутствует поле file")
}

// readField читает текстовое поле формы с ограничением размера.
func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("чтение поля %s: %w", part.FormName(), err)
	}
	if len(data) > maxFieldBytes {
		return "", fmt.Errorf("поле %s длиннее %d байт", part.FormName(), maxFieldBytes)
	}
	return string(data), nil
}

// ListFiles — GET /api/v1/files?q=&tag=&page=&page_size=&state=.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var (
		q, tag, state  *string
		page, pageSize *int
	)
	for _, b := range []struct {
		name string
		dest any
	}{
		{"q", &q}, {"tag", &tag}, {"state", &state}, {"page", &page}, {"page_size", &pageSize},
	} {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s", b.name))
			return
		}
	}

	filter := service.ListFilter{Query: deref(q), Tag: deref(tag)}
	sf, valid := model.ParseStateFilter(deref(state))
	if !valid {
		apierrors.ValidationError(w, "Параметр state: допустимые значения active, deleted, all")
		return
	}
	filter.State = sf

	res, err := h.files.List(r.Context(), p.UserID, filter, derefInt(page), derefInt(pageSize))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetFile — GET /api/v1/files/{id}.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	view, err := h.files.Get(r.Context(), id, p.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: view})
}

// DownloadFile — GET /api/v1/files/{id}/download.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	h.serveContent(w, r, service.KindDownload, "attachment")
}

// PreviewFile — GET /api/v1/files/{id}/preview, только изображения.
func (h *APIHandler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	h.serveContent(w, r, service.KindPreview, "inline")
}

// ThumbFile — GET /api/v1/files/{id}/thumb, PNG-превью.
func (h *APIHandler) ThumbFile(w http.ResponseWriter, r *http.Request) {
	h.serveContent(w, r, service.KindThumb, "inline")
}

// serveContent отдаёт содержимое через http.ServeContent
// (Range, If-Modified-Since, HEAD).
func (h *APIHandler) serveContent(w http.ResponseWriter, r *http.Request, kind service.ContentKind, disposition string) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	c, err := h.files.Open(r.Context(), id, p.UserID, kind)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer c.File.Close()

	w.Header().Set("Content-Type", c.Mime)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": c.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, c.Name, c.ModTime, c.File)
}

// DeleteFile — DELETE /api/v1/files/{id}, мягкое удаление.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.files.Delete)
}

// RestoreFile — POST /api/v1/files/{id}/restore.
func (h *APIHandler) RestoreFile(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.files.Restore)
}

func (h *APIHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id string, ownerID int64) error,
) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id, p.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// SetVisibility — POST /api/v1/files/{id}/visibility.
// Публичный доступ отключён: ответ всегда содержит is_public = false.
func (h *APIHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsPublic == nil {
		apierrors.ValidationError(w, "Поле is_public обязательно")
		return
	}

	view, err := h.files.SetVisibility(r.Context(), id, p.UserID, *req.IsPublic)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: view})
}

// PatchFile — PATCH /api/v1/files/{id}: имя и/или теги.
func (h *APIHandler) PatchFile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.files.PatchMeta(r.Context(), id, p.UserID, lifecycle.MetaPatch{Name: req.Name, Tags: req.Tags})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{File: view})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
