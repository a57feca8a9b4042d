// registry.go — реестр схем: уникальность (name, version, app) и схема по умолчанию
// в семействе (name, app). Проверка, снятие флага и вставка выполняются в одной
// транзакции под advisory lock семейства.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/lock"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
)

// registerSchema создаёт запись схемы.
// Дубликат отклоняется до любых изменений; при schema.IsDefault
// прежняя схема по умолчанию семейства снимается с флага.
func (s *SchemaService) registerSchema(ctx context.Context, schema *model.Schema) error {
	return s.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Schemas.LockFamily(ctx, schema.Name, schema.AppName); err != nil {
			return fmt.Errorf("ошибка блокировки семейства схем: %w", err)
		}

		exists, err := repos.Schemas.ExistsByIdentity(ctx, schema.Name, schema.Version, schema.AppName)
		if err != nil {
			return fmt.Errorf("ошибка проверки дубликата схемы: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s версии %s (%s)", ErrDuplicateSchema, schema.Name, schema.Version, schema.AppName)
		}

		if schema.IsDefault {
			demoted, err := repos.Schemas.DemoteDefault(ctx, schema.Name, schema.AppName)
			if err != nil {
				return fmt.Errorf("ошибка снятия схемы по умолчанию: %w", err)
			}
			if demoted > 0 {
				s.logger.Info("Прежняя схема по умолчанию снята с флага",
					slog.String("schema_name", schema.Name),
					slog.String("app_name", schema.AppName),
				)
			}
		}

		if err := repos.Schemas.Create(ctx, schema); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: %s версии %s (%s)", ErrDuplicateSchema, schema.Name, schema.Version, schema.AppName)
			}
			return fmt.Errorf("ошибка создания схемы: %w", err)
		}
		return nil
	})
}

// PromoteDefault делает схему схемой по умолчанию её семейства.
// Прежняя схема по умолчанию снимается с флага в той же транзакции.
func (s *SchemaService) PromoteDefault(ctx context.Context, schemaID string) (*model.Schema, error) {
	schema, err := s.GetSchema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if schema.IsDefault {
		return schema, nil
	}

	release, err := s.locker.Lock(ctx, lock.FamilyKey(schema.Name, schema.AppName))
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки семейства схем: %w", err)
	}
	defer release()

	err = s.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Schemas.LockFamily(ctx, schema.Name, schema.AppName); err != nil {
			return fmt.Errorf("ошибка блокировки семейства схем: %w", err)
		}
		if _, err := repos.Schemas.DemoteDefault(ctx, schema.Name, schema.AppName); err != nil {
			return fmt.Errorf("ошибка снятия схемы по умолчанию: %w", err)
		}
		if err := repos.Schemas.SetDefault(ctx, schema.ID, true); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownSchemaID, schema.ID)
			}
			if errors.Is(err, repository.ErrConflict) {
				// Уникальный индекс схемы по умолчанию: семейство изменено параллельно
				return fmt.Errorf("%w: схема по умолчанию %s (%s): %w", ErrConflict, schema.Name, schema.AppName, err)
			}
			return fmt.Errorf("ошибка назначения схемы по умолчанию: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	schema.IsDefault = true
	s.logger.Info("Схема назначена схемой по умолчанию",
		slog.String("schema_id", schema.ID),
		slog.String("schema_name", schema.Name),
		slog.String("app_name", schema.AppName),
	)
	return schema, nil
}
