// Пакет model — доменные модели filevault.
// FileRecord — метаданные загруженного файла, User — владелец файлов.
package model

import (
	"strings"
	"time"
)

// FileState — состояние жизненного цикла записи о файле.
type FileState string

const (
	// StateReady — файл доступен владельцу
	StateReady FileState = "ready"
	// StateDeleted — мягко удалён, байты на диске сохранены
	StateDeleted FileState = "deleted"
)

// StateFilter — режим выборки по состоянию при листинге.
type StateFilter string

const (
	// FilterActive — всё, кроме удалённых
	FilterActive StateFilter = "active"
	// FilterDeleted — только удалённые
	FilterDeleted StateFilter = "deleted"
	// FilterAll — без фильтра по состоянию
	FilterAll StateFilter = "all"
)

// ParseStateFilter преобразует строку в StateFilter.
// Пустая строка означает FilterActive.
func ParseStateFilter(s string) (StateFilter, bool) {
	switch StateFilter(s) {
	case "", FilterActive:
		return FilterActive, true
	case FilterDeleted, FilterAll:
		return StateFilter(s), true
	default:
		return "", false
	}
}

// Matches сообщает, попадает ли состояние под фильтр.
func (f StateFilter) Matches(state FileState) bool {
	switch f {
	case FilterDeleted:
		return state == StateDeleted
	case FilterAll:
		return true
	default:
		return state != StateDeleted
	}
}

// Ограничения длины строковых полей, совпадают со схемой БД.
// Длина считается в символах, а не в байтах.
const (
	MaxNameLength       = 255
	MaxStorageKeyLength = 512
)

// FileRecord — запись о файле.
type FileRecord struct {
	// ID — UUID записи, неизменяемый
	ID string
	// OwnerID — идентификатор владельца, неизменяемый
	OwnerID int64
	// StorageKey — ключ блоба в хранилище, уникален среди всех записей
	StorageKey string
	// Name — отображаемое имя файла
	Name string
	// Mime — MIME-тип, заданный при загрузке
	Mime string
	// Size — размер в байтах
	Size int64
	Tags []string
	// IsPublic — всегда false, публичный доступ отключён
	IsPublic  bool
	State     FileState
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	// Revision — номер версии записи, растёт при каждом Update
	Revision int64
}

// IsImage сообщает, относится ли файл к изображениям.
func (f *FileRecord) IsImage() bool {
	return IsImageMime(f.Mime)
}

// Clone возвращает глубокую копию записи.
func (f *FileRecord) Clone() *FileRecord {
	c := *f
	if f.Tags != nil {
		c.Tags = make([]string, len(f.Tags))
		copy(c.Tags, f.Tags)
	}
	if f.DeletedAt != nil {
		t := *f.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// HasTag проверяет точное вхождение тега.
func (f *FileRecord) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsImageMime проверяет, что MIME-тип имеет категорию image.
func IsImageMime(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "image/")
}

// User — зарегистрированный пользователь.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
