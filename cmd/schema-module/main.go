// Точка входа Schema Module — реестр схем метаданных.
// Загружает конфигурацию, подключает хранилище метаданных (PostgreSQL или SQLite)
// и хранилище документов (fs или S3), создаёт сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с опциональной JWT-идентификацией.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/goartstore/schema-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/schema-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/schema-module/internal/app"
	"github.com/bigkaa/goartstore/schema-module/internal/config"
	"github.com/bigkaa/goartstore/schema-module/internal/server"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Schema Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.DBDriver),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	if os.Getenv("SM_DEPHEALTH_GROUP") == "" {
		logger.Warn("SM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Хранилища, блокировки, кэш и сервисы
	ctx := context.Background()
	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации компонентов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer components.Close()

	// 4. JWT middleware (опционально: только идентификация владельца загрузки)
	checks := components.Checks
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.CACertPath,
			cfg.JWTIssuer,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}

		jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, 5*time.Second)
		if err != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checks = append(checks, handlers.DependencyCheck{Name: "jwks", Checker: jwksChecker})

		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Info("SM_JWT_JWKS_URL не задан, загрузки выполняются от имени anonymous")
	}

	// 5. API handler
	healthHandler := handlers.NewHealthHandler(checks...)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		components.Schemas,
		components.Forms,
		components.Visualization,
		cfg.MaxSchemaSize,
		logger,
	)

	// 6. topologymetrics — мониторинг зависимостей (PostgreSQL, S3, JWKS)
	s3Endpoint := ""
	if cfg.StorageDriver == config.StorageDriverS3 {
		s3Endpoint = cfg.S3Endpoint
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "schema-module",
		Group:         cfg.DephealthGroup,
		DB:            components.PgDB,
		PostgresURL:   cfg.DatabaseURL(),
		S3Endpoint:    s3Endpoint,
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		components.Close()
		os.Exit(1) //nolint:gocritic // ресурсы закрыты явно
	}

	// 8. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Schema Module остановлен")
}
