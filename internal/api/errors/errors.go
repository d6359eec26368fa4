// Пакет errors — ответы API filevault с ошибками.
// Тело всегда {"error": {"code": "...", "message": "..."}}, HTTP-статус
// однозначно определяется кодом.
package errors //nolint:revive // имя пакета совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeGone                 = "GONE"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// statusByCode — HTTP-статус для каждого кода.
var statusByCode = map[string]int{
	CodeValidationError:      http.StatusBadRequest,
	CodeUnauthorized:         http.StatusUnauthorized,
	CodeNotFound:             http.StatusNotFound,
	CodeConflict:             http.StatusConflict,
	CodeGone:                 http.StatusGone,
	CodeFileTooLarge:         http.StatusRequestEntityTooLarge,
	CodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	CodeInternalError:        http.StatusInternalServerError,
}

// Body — тело ответа с ошибкой.
type Body struct {
	Error Detail `json:"error"`
}

// Detail — код и описание ошибки.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusOf возвращает HTTP-статус кода; неизвестный код — 500.
func StatusOf(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Write записывает ответ с ошибкой; статус берётся из кода.
func Write(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(StatusOf(code))
	_ = json.NewEncoder(w).Encode(Body{Error: Detail{Code: code, Message: message}})
}

// ValidationError — 400.
func ValidationError(w http.ResponseWriter, message string) {
	Write(w, CodeValidationError, message)
}

// Unauthorized — 401. Добавляет WWW-Authenticate для Bearer-схемы.
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="filevault"`)
	Write(w, CodeUnauthorized, message)
}

// NotFound — 404. Также отдаётся за чужие файлы и недопустимые переходы.
func NotFound(w http.ResponseWriter, message string) {
	Write(w, CodeNotFound, message)
}

// Conflict — 409.
func Conflict(w http.ResponseWriter, message string) {
	Write(w, CodeConflict, message)
}

// Gone — 410: запись есть, содержимое на диске утрачено.
func Gone(w http.ResponseWriter, message string) {
	Write(w, CodeGone, message)
}

// FileTooLarge — 413.
func FileTooLarge(w http.ResponseWriter, message string) {
	Write(w, CodeFileTooLarge, message)
}

// UnsupportedMediaType — 415.
func UnsupportedMediaType(w http.ResponseWriter, message string) {
	Write(w, CodeUnsupportedMediaType, message)
}

// InternalError — 500. Подробности пишутся в лог, не клиенту.
func InternalError(w http.ResponseWriter, message string) {
	Write(w, CodeInternalError, message)
}
