// Пакет app — сборка компонентов Schema Module по конфигурации:
// хранилище метаданных, хранилище документов, блокировки, кэш и сервисы.
// Используется HTTP-сервером и утилитой schemactl.
package app

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/schema-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/schema-module/internal/config"
	"github.com/bigkaa/goartstore/schema-module/internal/database"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
	"github.com/bigkaa/goartstore/schema-module/internal/lock"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
	"github.com/bigkaa/goartstore/schema-module/internal/repository/sqlite"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
	"github.com/bigkaa/goartstore/schema-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/schema-module/internal/storage/s3store"
)

// Components — собранные компоненты модуля.
type Components struct {
	Store         repository.Store
	Files         service.FileStorage
	Locker        lock.Locker
	Cache         *service.CacheService
	Schemas       *service.SchemaService
	Forms         *service.FormService
	Visualization *service.VisualizationService

	// Checks — readiness-проверки для /health/ready
	Checks []handlers.DependencyCheck
	// PgDB — адаптер pgxpool → *sql.DB для topologymetrics; nil при SQLite
	PgDB *sql.DB

	closers []func()
}

// Close освобождает ресурсы в обратном порядке создания.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build создаёт компоненты. При ошибке уже созданные ресурсы освобождаются.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	c := &Components{}
	if err := c.build(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. Хранилище метаданных
	if err := c.openStore(ctx, cfg, logger); err != nil {
		return err
	}

	// 2. Хранилище исходных документов
	if err := c.openFiles(ctx, cfg, logger); err != nil {
		return err
	}

	// 3. Блокировка семейства схем
	if err := c.openLocker(ctx, cfg, logger); err != nil {
		return err
	}

	// 4. Кэш свойств схем
	c.Cache = service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	// 5. Сервисы
	c.Schemas = service.NewSchemaService(c.Store, c.Files, c.Locker, c.Cache,
		service.SchemaServiceConfig{
			SchemasFolder: cfg.SchemasFolder,
			MaxSchemaSize: cfg.MaxSchemaSize,
			IngestTimeout: cfg.IngestTimeout,
			Rules: schemadoc.Rules{
				BioinfoPrefix:                cfg.BioinfoPrefix,
				LineageClassification:        cfg.LineageClassification,
				PublicDatabaseClassification: cfg.PublicDatabaseClassification,
			},
		},
		logger,
	)

	var template []string
	if cfg.UseFormTemplate {
		var err error
		template, err = service.LoadTemplate(cfg.FormTemplatePath)
		if err != nil {
			// Без шаблона форма строится по всем свойствам схемы
			logger.Warn("Шаблон формы метаданных не загружен, используется полный список свойств",
				slog.String("path", cfg.FormTemplatePath),
				slog.String("error", err.Error()),
			)
			template = nil
		} else {
			logger.Info("Шаблон формы метаданных загружен",
				slog.String("path", cfg.FormTemplatePath),
				slog.Int("labels", len(template)),
			)
		}
	}
	c.Forms = service.NewFormService(c.Schemas, template, logger)
	c.Visualization = service.NewVisualizationService(c.Store, c.Schemas, logger)

	return nil
}

func (c *Components) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DBDriver == config.DBDriverSQLite {
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("ошибка открытия SQLite: %w", err)
		}
		c.closers = append(c.closers, func() { _ = st.Close() })
		c.Store = st
		c.Checks = append(c.Checks, handlers.DependencyCheck{Name: "sqlite", Checker: st})
		logger.Info("Хранилище метаданных: SQLite", slog.String("path", cfg.SQLitePath))
		return nil
	}

	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("ошибка миграций БД: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, pool.Close)

	// Проверка здоровья PostgreSQL в topologymetrics идёт через существующий пул
	c.PgDB = stdlib.OpenDBFromPool(pool)
	c.closers = append(c.closers, func() { _ = c.PgDB.Close() })

	c.Store = repository.NewPostgresStore(pool)
	c.Checks = append(c.Checks, handlers.DependencyCheck{
		Name: "postgresql", Checker: database.NewReadinessChecker(pool),
	})
	return nil
}

func (c *Components) openFiles(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.StorageDriver != config.StorageDriverS3 {
		fs, err := filestore.New(cfg.StorageDir)
		if err != nil {
			return fmt.Errorf("ошибка создания файлового хранилища: %w", err)
		}
		c.Files = fs
		logger.Info("Хранилище документов: файловая система", slog.String("dir", fs.DataDir()))
		return nil
	}

	var httpClient *http.Client
	if cfg.CACertPath != "" {
		var err error
		httpClient, err = buildHTTPClientWithCA(cfg.CACertPath)
		if err != nil {
			return fmt.Errorf("ошибка загрузки CA-сертификата: %w", err)
		}
	}

	st, err := s3store.New(ctx, s3store.Config{
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		PathStyle:  cfg.S3PathStyle,
		HTTPClient: httpClient,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания S3 хранилища: %w", err)
	}
	c.Files = st
	c.Checks = append(c.Checks, handlers.DependencyCheck{Name: "s3", Checker: st})
	logger.Info("Хранилище документов: S3",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("endpoint", cfg.S3Endpoint),
	)
	return nil
}

func (c *Components) openLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.RedisAddr == "" {
		c.Locker = lock.NewLocal()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	c.closers = append(c.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ошибка подключения к Redis %s: %w", cfg.RedisAddr, err)
	}

	rl, err := lock.NewRedis(lock.RedisConfig{
		Client: client,
		TTL:    cfg.LockTTL,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	c.Locker = rl
	c.Checks = append(c.Checks, handlers.DependencyCheck{Name: "redis", Checker: rl})
	logger.Info("Блокировки семейств схем через Redis", slog.String("addr", cfg.RedisAddr))
	return nil
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
