package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(MetricsMiddleware())
	router.Get("/api/v1/files/{id}/download", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	const pattern = "/api/v1/files/{id}/download"
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, pattern, "410")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a1b2", "c3d4"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/files/"+id+"/download", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("прирост счётчика = %v, ожидалось 2", got)
	}
}

func TestMetricsMiddleware_Unmatched(t *testing.T) {
	router := chi.NewRouter()
	router.Use(MetricsMiddleware())
	router.Get("/known", func(http.ResponseWriter, *http.Request) {})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedPath, "404")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("прирост счётчика unmatched = %v, ожидалось 1", got)
	}
}
