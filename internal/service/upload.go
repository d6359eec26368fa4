// upload.go — конвейер загрузки файла.
// Проверка MIME → ключ хранения → потоковая запись с лимитом →
// теги → запись метаданных → превью для изображений.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filevault/internal/domain/lifecycle"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/repository"
	"github.com/bigkaa/filevault/internal/storage/filestore"
	"github.com/bigkaa/filevault/internal/storage/keyname"
	"github.com/bigkaa/filevault/internal/thumbnail"
)

// sniffLen — сколько байт потока читается для определения MIME-типа.
const sniffLen = 3072

// octetStream — тип, который клиенты отправляют, когда тип неизвестен.
const octetStream = "application/octet-stream"

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_uploads_total",
		Help: "Общее количество загрузок по результату.",
	}, []string{"result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_upload_bytes_total",
		Help: "Общее количество принятых байт.",
	})
)

// UploadRequest — входные данные загрузки.
type UploadRequest struct {
	OwnerID int64
	// Filename — исходное имя файла от клиента
	Filename string
	// ContentType — заявленный клиентом MIME-тип (может быть пустым)
	ContentType string
	// Folder — необязательная подпапка внутри пространства владельца
	Folder string
	// Tags — JSON-список строк; некорректное значение даёт пустой набор
	Tags string
	Body io.Reader
}

// UploadService — оркестратор загрузки файлов.
type UploadService struct {
	files   repository.FileRecordStore
	store   *filestore.FileStore
	namer   *keyname.Namer
	thumbs  *thumbnail.Generator
	allowed map[string]bool
	logger  *slog.Logger
}

// NewUploadService создаёт оркестратор загрузки.
// allowedMIME — разрешённые типы в нижнем регистре; пустой список разрешает любой тип.
func NewUploadService(
	files repository.FileRecordStore,
	store *filestore.FileStore,
	namer *keyname.Namer,
	thumbs *thumbnail.Generator,
	allowedMIME []string,
	logger *slog.Logger,
) *UploadService {
	allowed := make(map[string]bool, len(allowedMIME))
	for _, m := range allowedMIME {
		allowed[strings.ToLower(m)] = true
	}
	return &UploadService{
		files:   files,
		store:   store,
		namer:   namer,
		thumbs:  thumbs,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "upload_service")),
	}
}

// Upload выполняет загрузку и возвращает представление созданной записи.
//
// Запись создаётся только после успешной записи блоба. Если сохранить
// запись не удалось, только что записанный блоб удаляется. Превью
// строится после создания записи и на результат не влияет.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*FileView, error) {
	start := time.Now()

	mimeType, body, err := s.resolveMime(req.ContentType, req.Body)
	if err != nil {
		if requestTooLarge(err) {
			uploadsTotal.WithLabelValues("too_large").Inc()
			return nil, fmt.Errorf("%w: %w", ErrEntityTooLarge, err)
		}
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(s.allowed) > 0 && !s.allowed[mimeType] {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "file"
	}
	if err := lifecycle.CheckName(filename); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	key := s.namer.Derive(req.OwnerID, req.Folder, filename)
	if n := utf8.RuneCountInString(key); n > model.MaxStorageKeyLength {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: путь хранения %d символов, максимум %d", ErrValidation, n, model.MaxStorageKeyLength)
	}

	size, err := s.store.Write(ctx, key, body)
	if err != nil {
		switch {
		case errors.Is(err, filestore.ErrEntityTooLarge):
			uploadsTotal.WithLabelValues("too_large").Inc()
			return nil, fmt.Errorf("%w: лимит %d байт", ErrEntityTooLarge, s.store.MaxBytes())
		case requestTooLarge(err):
			uploadsTotal.WithLabelValues("too_large").Inc()
			return nil, fmt.Errorf("%w: %w", ErrEntityTooLarge, err)
		case errors.Is(err, filestore.ErrKeyExists):
			uploadsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		default:
			uploadsTotal.WithLabelValues("error").Inc()
			s.logger.Error("Ошибка записи файла",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	rec := &model.FileRecord{
		ID:         uuid.New().String(),
		OwnerID:    req.OwnerID,
		StorageKey: key,
		Name:       filename,
		Mime:       mimeType,
		Size:       size,
		Tags:       ParseTags(req.Tags),
		IsPublic:   false,
		State:      model.StateReady,
	}
	if err := s.files.Create(ctx, rec); err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		if rmErr := s.store.Remove(key); rmErr != nil {
			s.logger.Warn("Не удалось удалить файл после ошибки записи метаданных",
				slog.String("key", key),
				slog.String("error", rmErr.Error()),
			)
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: ключ %s", ErrConflict, key)
		}
		if errors.Is(err, repository.ErrInvalidValue) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, fmt.Errorf("сохранение записи о файле: %w", err)
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(size))

	thumbOK := false
	if rec.IsImage() {
		thumbOK = s.thumbs.Generate(ctx, key, mimeType)
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", rec.ID),
		slog.Int64("owner_id", rec.OwnerID),
		slog.String("mime", mimeType),
		slog.Int64("size", size),
		slog.Bool("thumbnail", thumbOK),
		slog.Duration("duration", time.Since(start)),
	)

	view := NewFileView(rec, thumbOK)
	return &view, nil
}

// resolveMime определяет MIME-тип. Заявленный тип используется как есть
// (без параметров, в нижнем регистре). Если он пуст или равен
// application/octet-stream, тип определяется по первым байтам потока,
// а прочитанные байты возвращаются в начало тела.
func (s *UploadService) resolveMime(declared string, body io.Reader) (string, io.Reader, error) {
	if m := normalizeMime(declared); m != "" && m != octetStream {
		return m, body, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("%w: чтение начала файла: %w", ErrIO, err)
	}
	head = head[:n]

	detected := normalizeMime(mimetype.Detect(head).String())
	if detected == "" {
		detected = octetStream
	}
	return detected, io.MultiReader(bytes.NewReader(head), body), nil
}

// requestTooLarge сообщает, что поток оборвался на лимите тела запроса
// (http.MaxBytesReader), а не из-за сбоя хранилища.
func requestTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// normalizeMime убирает параметры (charset и т.п.) и приводит тип к нижнему регистру.
func normalizeMime(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return mt
	}
	return strings.ToLower(m)
}

// ParseTags разбирает JSON-список тегов. Некорректный JSON, значение,
// не являющееся списком, и нестроковые элементы молча отбрасываются.
// Результат нормализован: пробелы обрезаны, пустые и повторы удалены.
func ParseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}
	}
	tags := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			tags = append(tags, s)
		}
	}
	return lifecycle.NormalizeTags(tags)
}
