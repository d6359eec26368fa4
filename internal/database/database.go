// Пакет database — пул подключений PostgreSQL (pgxpool), схема
// метаданных filevault (golang-migrate, embedded SQL) и readiness-проверка.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/filevault/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Параметры пула и проверок.
const (
	maxConns          = 16
	minConns          = 2
	healthCheckPeriod = 30 * time.Second
	pingTimeout       = 5 * time.Second
	readyTimeout      = 3 * time.Second
)

// Connect открывает пул подключений и убеждается, что БД отвечает.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула подключений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", maxConns),
	)
	return pool, nil
}

// Migrate приводит схему users/files к последней версии.
// Повторный запуск на актуальной схеме ничего не делает.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Схема БД актуальна")
	case err != nil:
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("версия схемы: %w", err)
	}
	if dirty {
		return fmt.Errorf("схема БД в состоянии dirty, версия %d", version)
	}

	logger.Info("Миграции применены", slog.Uint64("version", uint64(version)))
	return nil
}

// ReadinessChecker — readiness-проверка PostgreSQL для /health/ready.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку поверх рабочего пула.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// Name возвращает имя проверки.
func (c *ReadinessChecker) Name() string {
	return "postgresql"
}

// CheckReady пингует БД; при исчерпании пула сообщает число занятых соединений.
func (c *ReadinessChecker) CheckReady(ctx context.Context) (status, message string) {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}

	stat := c.pool.Stat()
	if stat.AcquiredConns() >= stat.MaxConns() {
		return "degraded", fmt.Sprintf("пул исчерпан: %d/%d", stat.AcquiredConns(), stat.MaxConns())
	}
	return "ok", ""
}
