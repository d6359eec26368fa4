// handler.go — основной обработчик API filevault.
// Объединяет обработчики аутентификации и файлов, делегируя запросы
// в сервисный слой. Маршруты регистрируются в пакете server.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/service"
)

// maxJSONBody — лимит тела JSON-запросов.
const maxJSONBody = 64 << 10

// APIHandler — основной обработчик API filevault.
type APIHandler struct {
	users          *service.UserService
	upload         *service.UploadService
	files          *service.FilesService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUploadBytes — лимит размера файла (FV_MAX_UPLOAD_MB).
func NewAPIHandler(
	users *service.UserService,
	upload *service.UploadService,
	files *service.FilesService,
	maxUploadBytes int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		users:          users,
		upload:         upload,
		files:          files,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst. Неизвестные поля запрещены.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Пустое тело запроса")
			return false
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// fileID извлекает {id} из пути. Некорректный UUID неотличим
// от отсутствующего файла и даёт 404.
func fileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.NotFound(w, "Файл не найден")
		return "", false
	}
	return id.String(), true
}

// writeServiceError сопоставляет ошибку сервисного слоя с HTTP-ответом.
// Конкретные виды валидации проверяются раньше общего ErrValidation.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		apierrors.FileTooLarge(w, fmt.Sprintf("Превышен максимальный размер запроса: %d байт", maxErr.Limit))
	case errors.Is(err, service.ErrUnsupportedMedia):
		apierrors.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, service.ErrEntityTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrLocalAuthDisabled):
		apierrors.NotFound(w, "Регистрация и вход отключены: токены выдаёт внешний IdP")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Файл не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrGone):
		apierrors.Gone(w, "Файл отсутствует в хранилище")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
