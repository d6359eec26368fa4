// Пакет server — HTTP-сервер filevault с graceful shutdown.
// Без TLS, TLS termination выполняется на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/filevault/internal/api/handlers"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/config"
)

// Таймауты HTTP-сервера. WriteTimeout не задаётся: скачивание
// больших файлов не должно обрываться сервером.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Routes — обработчики, из которых собирается маршрутизатор.
type Routes struct {
	API    *handlers.APIHandler
	Health *handlers.HealthHandler
	Spec   *openapi.Spec
	// Auth — middleware аутентификации для защищённых маршрутов.
	Auth func(http.Handler) http.Handler
}

// NewRouter собирает chi-маршрутизатор filevault.
// middlewares применяются ко всем маршрутам в порядке передачи.
func NewRouter(routes Routes, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	// Публичные маршруты
	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/openapi.json", routes.Spec)
		r.Post("/auth/register", routes.API.Register)
		r.Post("/auth/login", routes.API.Login)

		// Маршруты владельца файлов
		r.Group(func(r chi.Router) {
			r.Use(routes.Auth)

			r.Get("/me", routes.API.Me)
			r.Post("/files/upload", routes.API.UploadFile)
			r.Get("/files", routes.API.ListFiles)
			r.Get("/files/{id}", routes.API.GetFile)
			r.Delete("/files/{id}", routes.API.DeleteFile)
			r.Patch("/files/{id}", routes.API.PatchFile)
			r.Get("/files/{id}/download", routes.API.DownloadFile)
			r.Get("/files/{id}/preview", routes.API.PreviewFile)
			r.Get("/files/{id}/thumb", routes.API.ThumbFile)
			r.Post("/files/{id}/restore", routes.API.RestoreFile)
			r.Post("/files/{id}/visibility", routes.API.SetVisibility)
		})
	})

	return router
}

// Server — HTTP-сервер filevault.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и стандартной цепочкой middleware:
// request id, логирование запросов, метрики, recoverer.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	router := NewRouter(routes,
		chimw.RequestID,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		chimw.Recoverer,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
