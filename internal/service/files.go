// files.go — операции над загруженными файлами владельца.
// Листинг, метаданные, выдача содержимого, мягкое удаление и
// восстановление, видимость, изменение имени и тегов.
//
// Политика доступа: отсутствующая запись, чужая запись и нарушенное
// предусловие состояния неразличимы для вызывающего и дают ErrNotFound.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filevault/internal/domain/lifecycle"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/repository"
	"github.com/bigkaa/filevault/internal/storage/filestore"
	"github.com/bigkaa/filevault/internal/thumbnail"
)

// lifecycleTransitionsTotal — счётчик изменений записей по виду операции.
var lifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fv_lifecycle_transitions_total",
	Help: "Количество применённых изменений записей о файлах.",
}, []string{"transition"})

// maxUpdateAttempts — попыток записи при параллельном изменении записи.
const maxUpdateAttempts = 3

// ContentKind — вид выдаваемого содержимого.
type ContentKind string

const (
	// KindDownload — исходный файл как вложение
	KindDownload ContentKind = "download"
	// KindPreview — исходный файл для показа, только изображения
	KindPreview ContentKind = "preview"
	// KindThumb — сгенерированное превью PNG
	KindThumb ContentKind = "thumb"
)

// ListFilter — фильтры листинга.
type ListFilter struct {
	Query string
	Tag   string
	State model.StateFilter
}

// ListResult — страница листинга.
type ListResult struct {
	Items    []FileView `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// Content — открытое содержимое файла. Вызывающий закрывает File.
type Content struct {
	File *os.File
	// Name — имя для Content-Disposition
	Name string
	// Mime — тип для Content-Type
	Mime    string
	Size    int64
	ModTime time.Time
}

// FilesService — сервис операций над файлами владельца.
type FilesService struct {
	files  repository.FileRecordStore
	store  *filestore.FileStore
	thumbs *thumbnail.Generator
	cache  *RecordCache
	now    func() time.Time
	logger *slog.Logger
}

// NewFilesService создаёт сервис файлов. cache может быть nil.
func NewFilesService(
	files repository.FileRecordStore,
	store *filestore.FileStore,
	thumbs *thumbnail.Generator,
	cache *RecordCache,
	logger *slog.Logger,
) *FilesService {
	return &FilesService{
		files:  files,
		store:  store,
		thumbs: thumbs,
		cache:  cache,
		now:    time.Now,
		logger: logger.With(slog.String("component", "files_service")),
	}
}

// List возвращает страницу файлов владельца.
func (s *FilesService) List(ctx context.Context, ownerID int64, filter ListFilter, page, pageSize int) (*ListResult, error) {
	params := repository.ListParams{
		OwnerID:  ownerID,
		Query:    filter.Query,
		Tag:      filter.Tag,
		State:    filter.State,
		Page:     page,
		PageSize: pageSize,
	}.Normalize()

	items, total, err := s.files.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("листинг файлов: %w", err)
	}

	views := make([]FileView, 0, len(items))
	for _, rec := range items {
		views = append(views, s.view(rec))
	}
	return &ListResult{
		Items:    views,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

// Get возвращает представление файла владельца в любом состоянии.
func (s *FilesService) Get(ctx context.Context, id string, ownerID int64) (*FileView, error) {
	rec, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	v := s.view(rec)
	return &v, nil
}

// Open открывает содержимое файла указанного вида.
// Запись должна существовать, принадлежать владельцу и быть в состоянии ready.
// Для download и preview отсутствие блоба даёт ErrGone, preview
// не-изображения — ErrUnsupportedMedia, отсутствие превью — ErrNotFound.
func (s *FilesService) Open(ctx context.Context, id string, ownerID int64, kind ContentKind) (*Content, error) {
	rec, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if rec.State != model.StateReady {
		return nil, ErrNotFound
	}

	switch kind {
	case KindThumb:
		return s.openBlob(filestore.ThumbKey(rec.StorageKey), rec.Name+filestore.ThumbSuffix, "image/png", ErrNotFound)
	case KindPreview:
		if !rec.IsImage() {
			if !s.store.Exists(rec.StorageKey) {
				return nil, ErrGone
			}
			return nil, fmt.Errorf("%w: предпросмотр доступен только для изображений", ErrUnsupportedMedia)
		}
		return s.openBlob(rec.StorageKey, rec.Name, rec.Mime, ErrGone)
	case KindDownload:
		return s.openBlob(rec.StorageKey, rec.Name, rec.Mime, ErrGone)
	default:
		return nil, fmt.Errorf("%w: неизвестный вид содержимого %q", ErrValidation, kind)
	}
}

// openBlob открывает файл хранилища; отсутствие файла даёт missingErr.
func (s *FilesService) openBlob(key, name, mimeType string, missingErr error) (*Content, error) {
	f, err := s.store.Open(key)
	if err != nil {
		if errors.Is(err, filestore.ErrBlobNotFound) {
			if missingErr == ErrGone {
				s.logger.Warn("Файл отсутствует на диске", slog.String("key", key))
			}
			return nil, missingErr
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &Content{
		File:    f,
		Name:    name,
		Mime:    mimeType,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete мягко удаляет файл: ready → deleted. Блоб и превью остаются на диске.
func (s *FilesService) Delete(ctx context.Context, id string, ownerID int64) error {
	return s.transition(ctx, id, ownerID, model.StateDeleted, "delete")
}

// Restore восстанавливает мягко удалённый файл: deleted → ready.
func (s *FilesService) Restore(ctx context.Context, id string, ownerID int64) error {
	return s.transition(ctx, id, ownerID, model.StateReady, "restore")
}

func (s *FilesService) transition(ctx context.Context, id string, ownerID int64, target model.FileState, name string) error {
	_, _, err := s.mutate(ctx, id, ownerID, func(rec *model.FileRecord) (bool, error) {
		if err := lifecycle.TransitionTo(rec, target, s.now()); err != nil {
			s.logger.Debug("Переход отклонён",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)
			return false, ErrNotFound
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	lifecycleTransitionsTotal.WithLabelValues(name).Inc()
	s.logger.Info("Состояние файла изменено",
		slog.String("file_id", id),
		slog.String("state", string(target)),
	)
	return nil
}

// SetVisibility обрабатывает запрос на смену видимости. Публичный доступ
// отключён: файл остаётся приватным при любом desired. Требует state = ready.
func (s *FilesService) SetVisibility(ctx context.Context, id string, ownerID int64, desired bool) (*FileView, error) {
	rec, changed, err := s.mutate(ctx, id, ownerID, func(rec *model.FileRecord) (bool, error) {
		changed, err := lifecycle.SetVisibility(rec, desired, s.now())
		if err != nil {
			return false, ErrNotFound
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		lifecycleTransitionsTotal.WithLabelValues("visibility").Inc()
	}
	v := s.view(rec)
	return &v, nil
}

// PatchMeta изменяет переданные поля метаданных в любом состоянии.
// Имя длиннее model.MaxNameLength символов даёт ErrValidation.
func (s *FilesService) PatchMeta(ctx context.Context, id string, ownerID int64, patch lifecycle.MetaPatch) (*FileView, error) {
	if err := lifecycle.ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	rec, changed, err := s.mutate(ctx, id, ownerID, func(rec *model.FileRecord) (bool, error) {
		return lifecycle.ApplyPatch(rec, patch, s.now()), nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		lifecycleTransitionsTotal.WithLabelValues("patch").Inc()
	}
	v := s.view(rec)
	return &v, nil
}

// mutate читает запись владельца, применяет apply и сохраняет результат.
// Если запись изменили параллельно, она перечитывается и apply
// выполняется заново на свежем состоянии, не более maxUpdateAttempts раз.
func (s *FilesService) mutate(
	ctx context.Context,
	id string,
	ownerID int64,
	apply func(rec *model.FileRecord) (bool, error),
) (*model.FileRecord, bool, error) {
	for attempt := 1; ; attempt++ {
		rec, err := s.owned(ctx, id, ownerID)
		if err != nil {
			return nil, false, err
		}
		changed, err := apply(rec)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return rec, false, nil
		}

		err = s.save(ctx, rec)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, repository.ErrStale) || attempt >= maxUpdateAttempts {
			return nil, false, err
		}
		s.logger.Debug("Запись изменена параллельно, повтор",
			slog.String("file_id", id),
			slog.Int("attempt", attempt),
		)
	}
}

// owned загружает запись (из кэша или хранилища) и проверяет владельца.
func (s *FilesService) owned(ctx context.Context, id string, ownerID int64) (*model.FileRecord, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *FilesService) getRecord(ctx context.Context, id string) (*model.FileRecord, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Lookup(id); ok {
			return rec, nil
		}
	}

	rec, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение файла %s: %w", id, err)
	}

	if s.cache != nil {
		s.cache.Put(rec)
	}
	return rec, nil
}

// save записывает изменённую запись и обновляет кэш.
// Устаревшая версия даёт ErrConflict, обёрнутую вместе с repository.ErrStale.
func (s *FilesService) save(ctx context.Context, rec *model.FileRecord) error {
	if err := s.files.Update(ctx, rec); err != nil {
		if s.cache != nil {
			s.cache.Invalidate(rec.ID)
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, repository.ErrStale):
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case errors.Is(err, repository.ErrInvalidValue):
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return fmt.Errorf("обновление файла %s: %w", rec.ID, err)
	}
	if s.cache != nil {
		s.cache.Put(rec)
	}
	return nil
}

func (s *FilesService) view(rec *model.FileRecord) FileView {
	return NewFileView(rec, s.thumbs.Available(rec.StorageKey))
}
