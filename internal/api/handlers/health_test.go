package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// stubChecker — проверка с фиксированным результатом.
type stubChecker struct {
	name, status, message string
}

func (c stubChecker) Name() string { return c.name }

func (c stubChecker) CheckReady(context.Context) (string, string) { return c.status, c.message }

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler().HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != statusOK || resp.Service != "filevault" {
		t.Errorf("неожиданный ответ: %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []ReadinessChecker
		wantStatus string
		wantCode   int
	}{
		{"без зависимостей", nil, statusOK, http.StatusOK},
		{"все ok", []ReadinessChecker{stubChecker{"a", statusOK, ""}, stubChecker{"b", statusOK, ""}}, statusOK, http.StatusOK},
		{"degraded", []ReadinessChecker{stubChecker{"a", statusOK, ""}, stubChecker{"b", statusDegraded, "jwks"}}, statusDegraded, http.StatusOK},
		{"fail", []ReadinessChecker{stubChecker{"a", statusDegraded, ""}, stubChecker{"b", statusFail, "нет связи"}}, statusFail, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checkers...).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, ожидался %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Checks) != len(tt.checkers) {
				t.Errorf("checks = %d, ожидалось %d", len(resp.Checks), len(tt.checkers))
			}
		})
	}
}

func TestStorageChecker(t *testing.T) {
	dir := t.TempDir()
	if status, _ := NewStorageChecker(dir).CheckReady(context.Background()); status != statusOK {
		t.Errorf("существующая директория: %q", status)
	}
	if status, _ := NewStorageChecker(filepath.Join(dir, "missing")).CheckReady(context.Background()); status != statusFail {
		t.Errorf("отсутствующая директория: %q", status)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if status, _ := NewStorageChecker(file).CheckReady(context.Background()); status != statusFail {
		t.Errorf("файл вместо директории: %q", status)
	}
}
