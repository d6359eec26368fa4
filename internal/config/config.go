// Пакет config — загрузка и валидация конфигурации filevault
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранения метаданных.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// defaultAllowedMIME — MIME-типы, разрешённые к загрузке по умолчанию.
const defaultAllowedMIME = "image/jpeg,image/png,image/webp,application/pdf,text/plain"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория хранилища файлов
	DataDir string
	// Бэкенд метаданных: postgres или memory
	StorageBackend string

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Максимальный размер загружаемого файла в байтах
	MaxUploadBytes int64
	// Разрешённые MIME-типы (пустой список — разрешено всё)
	AllowedMIME []string
	// Сторона ограничивающего квадрата превью в пикселях
	ThumbSize int

	// Секрет подписи HS256 токенов
	JWTSecret string
	// Время жизни выпускаемого токена
	JWTExpiry time.Duration
	// URL JWKS endpoint внешнего IdP (опционально, включает RS256)
	JWKSUrl string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// Размер LRU-кэша метаданных
	CacheSize int
	// TTL записи в кэше метаданных
	CacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// FV_PORT — порт HTTP-сервера (по умолчанию 8000)
	port, err := getEnvInt("FV_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("FV_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("FV_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	cfg.DataDir = getEnvDefault("FV_DATA_DIR", "./storage")

	// FV_STORAGE_BACKEND — где хранить метаданные (по умолчанию postgres)
	cfg.StorageBackend = getEnvDefault("FV_STORAGE_BACKEND", BackendPostgres)
	if cfg.StorageBackend != BackendPostgres && cfg.StorageBackend != BackendMemory {
		return nil, fmt.Errorf("FV_STORAGE_BACKEND: недопустимое значение %q, допустимые: postgres, memory", cfg.StorageBackend)
	}

	if cfg.StorageBackend == BackendPostgres {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// FV_MAX_UPLOAD_MB — лимит размера загрузки (по умолчанию 50 MB)
	maxMB, err := getEnvInt64("FV_MAX_UPLOAD_MB", 50)
	if err != nil {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_MB: %w", err)
	}
	if maxMB <= 0 {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_MB: значение должно быть положительным")
	}
	cfg.MaxUploadBytes = maxMB * 1024 * 1024

	cfg.AllowedMIME = parseList(getEnvRaw("FV_ALLOWED_MIME", defaultAllowedMIME))

	// FV_THUMB_SIZE — размер превью (по умолчанию 256)
	cfg.ThumbSize, err = getEnvInt("FV_THUMB_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("FV_THUMB_SIZE: %w", err)
	}
	if cfg.ThumbSize < 16 || cfg.ThumbSize > 2048 {
		return nil, fmt.Errorf("FV_THUMB_SIZE: значение %d вне допустимого диапазона 16-2048", cfg.ThumbSize)
	}

	// FV_JWT_SECRET — обязательный, не короче 8 символов
	cfg.JWTSecret, err = getEnvRequired("FV_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 8 {
		return nil, fmt.Errorf("FV_JWT_SECRET: секрет должен быть не короче 8 символов")
	}

	cfg.JWTExpiry, err = getEnvDuration("FV_JWT_EXPIRY", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FV_JWT_EXPIRY: %w", err)
	}
	if cfg.JWTExpiry <= 0 {
		return nil, fmt.Errorf("FV_JWT_EXPIRY: значение должно быть положительным")
	}

	cfg.JWKSUrl = getEnvDefault("FV_JWKS_URL", "")

	cfg.JWTLeeway, err = getEnvDuration("FV_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_JWT_LEEWAY: %w", err)
	}

	// FV_CACHE_SIZE / FV_CACHE_TTL — LRU-кэш метаданных
	cfg.CacheSize, err = getEnvInt("FV_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("FV_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("FV_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CacheTTL, err = getEnvDuration("FV_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_CACHE_TTL: %w", err)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FV_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("FV_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("FV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FV_DEPHEALTH_GROUP", "filevault")

	return cfg, nil
}

// loadDatabase читает параметры PostgreSQL. Хост, имя БД, пользователь
// и пароль обязательны.
func loadDatabase(cfg *Config) error {
	var err error

	cfg.DBHost, err = getEnvRequired("FV_DB_HOST")
	if err != nil {
		return err
	}

	cfg.DBPort, err = getEnvInt("FV_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("FV_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("FV_DB_NAME")
	if err != nil {
		return err
	}

	cfg.DBUser, err = getEnvRequired("FV_DB_USER")
	if err != nil {
		return err
	}

	cfg.DBPassword, err = getEnvRequired("FV_DB_PASSWORD")
	if err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("FV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("FV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL без пароля.
// Используется для меток метрик зависимостей.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrationURL возвращает URL для golang-migrate (драйвер pgx5).
// Учётные данные экранируются.
func (c *Config) MigrationURL() string {
	return (&url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}).String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvRaw в отличие от getEnvDefault различает «не задана» и «задана пустой».
// Пустой FV_ALLOWED_MIME означает отсутствие ограничений.
func getEnvRaw(key, defaultVal string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseList разбирает список через запятую, отбрасывая пустые элементы.
func parseList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, strings.ToLower(part))
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
