// health.go — обработчики health endpoints filevault.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилище данных и PostgreSQL доступны)
package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/bigkaa/filevault/internal/config"
)

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// readyTimeout — общий таймаут проверок readiness.
const readyTimeout = 3 * time.Second

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// Name возвращает имя зависимости для поля checks.
	Name() string
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady(ctx context.Context) (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers []ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checkers ...ReadinessChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ liveness и readiness probe.
type healthResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "filevault",
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := healthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "filevault",
		Checks:    make(map[string]healthCheckResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers))
	for _, c := range h.checkers {
		status, msg := c.CheckReady(ctx)
		resp.Checks[c.Name()] = healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded. Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}

// StorageChecker — проверка директории данных.
type StorageChecker struct {
	dataDir string
}

// NewStorageChecker создаёт проверку директории данных.
func NewStorageChecker(dataDir string) *StorageChecker {
	return &StorageChecker{dataDir: dataDir}
}

// Name возвращает имя зависимости.
func (c *StorageChecker) Name() string {
	return "storage"
}

// CheckReady проверяет, что директория данных существует.
func (c *StorageChecker) CheckReady(_ context.Context) (status, message string) {
	info, err := os.Stat(c.dataDir)
	if err != nil {
		return statusFail, "директория данных недоступна: " + err.Error()
	}
	if !info.IsDir() {
		return statusFail, "путь данных не является директорией"
	}
	return statusOK, ""
}
