// Точка входа filevault — персонального файлового хранилища.
// Загружает конфигурацию, поднимает хранилище метаданных (PostgreSQL
// или in-memory), файловое хранилище и генератор превью, создаёт
// сервисный слой и API handlers, запускает topologymetrics и
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/filevault/internal/api/handlers"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/auth"
	"github.com/bigkaa/filevault/internal/config"
	"github.com/bigkaa/filevault/internal/database"
	"github.com/bigkaa/filevault/internal/repository"
	"github.com/bigkaa/filevault/internal/server"
	"github.com/bigkaa/filevault/internal/service"
	"github.com/bigkaa/filevault/internal/storage/filestore"
	"github.com/bigkaa/filevault/internal/storage/keyname"
	"github.com/bigkaa/filevault/internal/thumbnail"
)

// Параметры загрузки JWKS внешнего IdP.
const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 15 * time.Minute
)

// serviceID — имя вершины графа зависимостей в topologymetrics.
const serviceID = "filevault"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("filevault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("data_dir", cfg.DataDir),
	)

	ctx := context.Background()

	// 3. Файловое хранилище и превью
	store, err := filestore.New(cfg.DataDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}
	thumbs := thumbnail.New(store, cfg.ThumbSize, logger)

	checkers := []handlers.ReadinessChecker{handlers.NewStorageChecker(store.DataDir())}

	// 4. Хранилище метаданных
	var (
		fileRepo     repository.FileRecordStore
		userRepo     repository.UserStore
		dephealthSvc *service.DephealthService
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		fileRepo = repository.NewFileRepository(pool)
		userRepo = repository.NewUserRepository(pool)
		checkers = append(checkers, database.NewReadinessChecker(pool))

		// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
		// через рабочий пул соединений.
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		dephealthSvc, err = service.NewDephealthService(
			serviceID,
			cfg.DephealthGroup,
			pgDB,
			cfg.DatabaseURL(),
			cfg.JWKSUrl,
			cfg.DephealthCheckInterval,
			logger,
		)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
			dephealthSvc = nil
		}
	case config.BackendMemory:
		logger.Warn("Используется in-memory хранилище метаданных, данные не переживут рестарт")
		fileRepo = repository.NewMemoryFileStore()
		userRepo = repository.NewMemoryUserStore()
	}

	if dephealthSvc != nil {
		if err := dephealthSvc.Start(ctx); err != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
			dephealthSvc = nil
		} else {
			checkers = append(checkers, dephealthSvc)
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 5. Проверка токенов: RS256 по JWKS внешнего IdP или HS256 собственных токенов.
	// С внешним IdP собственные токены не выдаются, а пользователи создаются
	// при первом запросе.
	verifier := auth.NewHS256Verifier(cfg.JWTSecret, cfg.JWTLeeway)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	if cfg.JWKSUrl != "" {
		verifier, err = auth.NewJWKSVerifier(cfg.JWKSUrl, jwksClientTimeout, jwksRefreshInterval, cfg.JWTLeeway, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWKS", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT аутентификация через JWKS, регистрация и вход отключены",
			slog.String("jwks_url", cfg.JWKSUrl),
		)
		issuer = nil
	}

	// 6. Сервисы
	cache := service.NewRecordCache(cfg.CacheSize, cfg.CacheTTL)
	usersSvc := service.NewUserService(userRepo, issuer, logger)
	uploadSvc := service.NewUploadService(fileRepo, store, keyname.New(), thumbs, cfg.AllowedMIME, logger)
	filesSvc := service.NewFilesService(fileRepo, store, thumbs, cache, logger)

	// 7. OpenAPI контракт
	spec, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Handlers и HTTP-сервер
	jwtAuth := middleware.NewJWTAuth(verifier, logger)
	if !usersSvc.LocalAuth() {
		jwtAuth.WithProvisioner(usersSvc)
	}
	routes := server.Routes{
		API:    handlers.NewAPIHandler(usersSvc, uploadSvc, filesSvc, cfg.MaxUploadBytes, logger),
		Health: handlers.NewHealthHandler(checkers...),
		Spec:   spec,
		Auth:   jwtAuth.Middleware(),
	}
	srv := server.New(cfg, logger, routes)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Остановка фоновых процессов ---
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("filevault остановлен")
}
