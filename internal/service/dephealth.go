// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Schema Module мониторит до трёх зависимостей:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical);
//     при SM_DB_DRIVER=sqlite не регистрируется
//   - S3 / MinIO — HTTP checker к health endpoint (critical), только при заданном SM_S3_ENDPOINT
//   - JWKS — HTTP checker к JWKS endpoint, только при заданном SM_JWT_JWKS_URL
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для S3 и JWKS
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// minioHealthPath — liveness endpoint MinIO.
const minioHealthPath = "/minio/health/live"

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (SM_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool); nil — PostgreSQL не мониторится
	DB *sql.DB
	// PostgresURL — URL PostgreSQL для лейблов метрик (без пароля)
	PostgresURL string
	// S3Endpoint — endpoint S3-совместимого хранилища (пусто — не мониторится)
	S3Endpoint string
	// JWKSURL — URL JWKS endpoint (пусто — не мониторится)
	JWKSURL string
	// CheckInterval — интервал проверки (SM_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// Registerer — Prometheus registerer (nil — глобальный)
	Registerer prometheus.Registerer
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	names  []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Без единой зависимости возвращает ошибку.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	names := dependencyNames(cfg)
	if len(names) == 0 {
		return nil, errors.New("нет зависимостей для мониторинга")
	}

	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if cfg.DB != nil {
		// PostgreSQL — connection pool mode через существующий pgxpool.
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
	}

	if cfg.S3Endpoint != "" {
		opts = append(opts, dephealth.HTTP("s3",
			httpDependencyOptions(cfg.S3Endpoint, minioHealthPath, cfg.CheckInterval, true)...,
		))
	}

	if cfg.JWKSURL != "" {
		// Health path — путь самого JWKS URL: подтверждает доступность ключей
		opts = append(opts, dephealth.HTTP("jwks",
			httpDependencyOptions(cfg.JWKSURL, healthPath(cfg.JWKSURL, "/health"), cfg.CheckInterval, false)...,
		))
	}

	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		names:  names,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен",
		slog.String("dependencies", strings.Join(ds.names, ", ")),
	)
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// dependencyNames — имена зависимостей, которые будут зарегистрированы.
func dependencyNames(cfg DephealthConfig) []string {
	var names []string
	if cfg.DB != nil {
		names = append(names, "postgresql")
	}
	if cfg.S3Endpoint != "" {
		names = append(names, "s3")
	}
	if cfg.JWKSURL != "" {
		names = append(names, "jwks")
	}
	return names
}

func httpDependencyOptions(rawURL, path string, interval time.Duration, critical bool) []dephealth.DependencyOption {
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(rawURL),
		dephealth.WithHTTPHealthPath(path),
		dephealth.CheckInterval(interval),
		dephealth.Critical(critical),
	}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "https" {
		opts = append(opts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return opts
}

// healthPath возвращает путь URL или fallback, если путь пустой.
func healthPath(rawURL, fallback string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" && parsed.Path != "/" {
		return parsed.Path
	}
	return fallback
}
