// Пакет config — загрузка и валидация конфигурации Schema Module
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

// Драйверы хранилища метаданных.
const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Драйверы хранилища исходных документов схем.
const (
	StorageDriverFS = "fs"
	StorageDriverS3 = "s3"
)

// Config содержит все параметры конфигурации Schema Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище метаданных ---

	// Драйвер БД: postgres или sqlite
	DBDriver string
	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений PostgreSQL
	DBMaxConns int
	// Путь к файлу SQLite (для DBDriver=sqlite)
	SQLitePath string

	// --- Хранилище файлов схем ---

	// Драйвер: fs или s3
	StorageDriver string
	// Корневой каталог для драйвера fs
	StorageDir string
	// Подкаталог (или префикс ключа S3) для загруженных схем
	SchemasFolder string
	// Bucket S3
	S3Bucket string
	// Регион S3
	S3Region string
	// Endpoint S3-совместимого хранилища (MinIO), опционально
	S3Endpoint string
	// Path-style адресация bucket
	S3PathStyle bool

	// --- Redis (распределённая блокировка, опционально) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// TTL блокировки семейства схем
	LockTTL time.Duration

	// --- JWT (опционально, только идентификация владельца) ---

	// URL JWKS endpoint; пустой — JWT middleware отключён
	JWTJWKSURL string
	// Ожидаемый issuer JWT (опционально)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Путь к CA-сертификату для TLS-соединения с JWKS (опционально)
	CACertPath string

	// --- Загрузка схем ---

	// Использовать шаблон для формы метаданных
	UseFormTemplate bool
	// Путь к файлу шаблона формы (одна метка в строке)
	FormTemplatePath string
	// Максимальный размер загружаемого документа схемы
	MaxSchemaSize int64
	// Общий дедлайн загрузки одной схемы
	IngestTimeout time.Duration

	// --- Кэш ---

	CacheSize int
	CacheTTL  time.Duration

	// --- Правила классификации ---

	BioinfoPrefix                string
	LineageClassification        string
	PublicDatabaseClassification string

	// --- topologymetrics ---

	// Группа сервиса в topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SM_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("SM_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("SM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SM_LOG_LEVEL: %w", err)
	}

	// SM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище метаданных ---

	cfg.DBDriver = getEnvDefault("SM_DB_DRIVER", DBDriverPostgres)
	switch cfg.DBDriver {
	case DBDriverPostgres:
		if err := loadPostgres(cfg); err != nil {
			return nil, err
		}
	case DBDriverSQLite:
		cfg.SQLitePath = getEnvDefault("SM_SQLITE_PATH", "data/schema-module.db")
	default:
		return nil, fmt.Errorf("SM_DB_DRIVER: недопустимое значение %q, допустимые: postgres, sqlite", cfg.DBDriver)
	}

	// --- Хранилище файлов схем ---

	cfg.StorageDriver = getEnvDefault("SM_STORAGE_DRIVER", StorageDriverFS)
	cfg.StorageDir = getEnvDefault("SM_STORAGE_DIR", "data")
	cfg.SchemasFolder = getEnvDefault("SM_SCHEMAS_FOLDER", "schemas")
	switch cfg.StorageDriver {
	case StorageDriverFS:
	case StorageDriverS3:
		// SM_S3_BUCKET — обязательный для драйвера s3
		cfg.S3Bucket, err = getEnvRequired("SM_S3_BUCKET")
		if err != nil {
			return nil, err
		}
		cfg.S3Region = getEnvDefault("SM_S3_REGION", "us-east-1")
		cfg.S3Endpoint = strings.TrimRight(getEnvDefault("SM_S3_ENDPOINT", ""), "/")
		cfg.S3PathStyle, err = getEnvBool("SM_S3_PATH_STYLE", cfg.S3Endpoint != "")
		if err != nil {
			return nil, fmt.Errorf("SM_S3_PATH_STYLE: %w", err)
		}
	default:
		return nil, fmt.Errorf("SM_STORAGE_DRIVER: недопустимое значение %q, допустимые: fs, s3", cfg.StorageDriver)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("SM_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("SM_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("SM_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("SM_REDIS_DB: %w", err)
	}
	cfg.LockTTL, err = getEnvDuration("SM_LOCK_TTL", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_LOCK_TTL: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("SM_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("SM_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("SM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_JWT_LEEWAY: %w", err)
	}
	cfg.CACertPath = getEnvDefault("SM_CA_CERT_PATH", "")

	// --- Загрузка схем ---

	cfg.UseFormTemplate, err = getEnvBool("SM_USE_TEMPLATE_FOR_METADATA_FORM", false)
	if err != nil {
		return nil, fmt.Errorf("SM_USE_TEMPLATE_FOR_METADATA_FORM: %w", err)
	}
	cfg.FormTemplatePath = getEnvDefault("SM_METADATA_FORM_TEMPLATE", "conf/template_for_metadata_form.txt")

	maxSize, err := getEnvInt("SM_MAX_SCHEMA_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SM_MAX_SCHEMA_SIZE: %w", err)
	}
	if maxSize < 1 {
		return nil, fmt.Errorf("SM_MAX_SCHEMA_SIZE: значение %d должно быть положительным", maxSize)
	}
	cfg.MaxSchemaSize = int64(maxSize)

	cfg.IngestTimeout, err = getEnvDuration("SM_INGEST_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_INGEST_TIMEOUT: %w", err)
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("SM_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("SM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("SM_CACHE_SIZE: значение %d должно быть положительным", cfg.CacheSize)
	}
	cfg.CacheTTL, err = getEnvDuration("SM_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_CACHE_TTL: %w", err)
	}

	// --- Правила классификации ---

	cfg.BioinfoPrefix = getEnvDefault("SM_BIOINFO_PREFIX", "Bioinformatic")
	cfg.LineageClassification = getEnvDefault("SM_LINEAGE_CLASSIFICATION", "Lineage fields")
	cfg.PublicDatabaseClassification = getEnvDefault("SM_PUBLIC_DB_CLASSIFICATION", "Public databases")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SM_DEPHEALTH_GROUP", "schema-registry")
	cfg.DephealthCheckInterval, err = getEnvDuration("SM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadPostgres загружает параметры подключения к PostgreSQL.
func loadPostgres(cfg *Config) error {
	var err error

	// SM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("SM_DB_HOST")
	if err != nil {
		return err
	}

	// SM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("SM_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("SM_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("SM_DB_NAME")
	if err != nil {
		return err
	}
	cfg.DBUser, err = getEnvRequired("SM_DB_USER")
	if err != nil {
		return err
	}
	cfg.DBPassword, err = getEnvRequired("SM_DB_PASSWORD")
	if err != nil {
		return err
	}

	// SM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("SM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("SM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("SM_DB_MAX_CONNS", 10)
	if err != nil {
		return fmt.Errorf("SM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return fmt.Errorf("SM_DB_MAX_CONNS: значение должно быть больше 0, получено %d", cfg.DBMaxConns)
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

// DatabaseURL возвращает URL PostgreSQL для topologymetrics (без пароля).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
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
