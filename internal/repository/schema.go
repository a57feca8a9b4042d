package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
)

// SchemaRepository — операции реестра схем (таблица schemas).
// Семейство схем — (schema_name без учёта регистра, app_name).
type SchemaRepository interface {
	// LockFamily сериализует изменения семейства до конца текущей транзакции.
	LockFamily(ctx context.Context, name, appName string) error
	// ExistsByIdentity проверяет наличие схемы с тем же (name, version, app).
	ExistsByIdentity(ctx context.Context, name, version, appName string) (bool, error)
	// FindDefault возвращает последнюю схему по умолчанию семейства или ErrNotFound.
	FindDefault(ctx context.Context, name, appName string) (*model.Schema, error)
	// FindLatestDefault возвращает самую свежую схему по умолчанию любого семейства.
	FindLatestDefault(ctx context.Context) (*model.Schema, error)
	// DemoteDefault снимает флаг по умолчанию в семействе, возвращает число изменённых записей.
	DemoteDefault(ctx context.Context, name, appName string) (int64, error)
	// SetDefault устанавливает флаг по умолчанию для схемы.
	SetDefault(ctx context.Context, id string, isDefault bool) error
	// Create создаёт схему; нарушение уникальности — ErrConflict.
	Create(ctx context.Context, s *model.Schema) error
	// GetByID возвращает схему по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Schema, error)
	// ListByApp возвращает схемы приложения (пустое appName — все), упорядоченные по имени.
	ListByApp(ctx context.Context, appName string) ([]*model.Schema, error)
}

type schemaRepo struct {
	db DBTX
}

// NewSchemaRepository создаёт репозиторий схем.
func NewSchemaRepository(db DBTX) SchemaRepository {
	return &schemaRepo{db: db}
}

const schemaColumns = `id, schema_name, schema_version, app_name, is_default, file_ref, owner, created_at`

func (r *schemaRepo) LockFamily(ctx context.Context, name, appName string) error {
	_, err := r.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext(lower($1::text) || '/' || $2::text))`, name, appName)
	if err != nil {
		return fmt.Errorf("ошибка блокировки семейства схем: %w", err)
	}
	return nil
}

func (r *schemaRepo) ExistsByIdentity(ctx context.Context, name, version, appName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM schemas
			WHERE lower(schema_name) = lower($1)
			  AND lower(schema_version) = lower($2)
			  AND app_name = $3
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, name, version, appName).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки схемы: %w", err)
	}
	return exists, nil
}

func (r *schemaRepo) FindDefault(ctx context.Context, name, appName string) (*model.Schema, error) {
	query := `SELECT ` + schemaColumns + `
		FROM schemas
		WHERE lower(schema_name) = lower($1) AND app_name = $2 AND is_default
		ORDER BY created_at DESC
		LIMIT 1`

	return r.getOne(ctx, query, name, appName)
}

func (r *schemaRepo) FindLatestDefault(ctx context.Context) (*model.Schema, error) {
	query := `SELECT ` + schemaColumns + `
		FROM schemas
		WHERE is_default
		ORDER BY created_at DESC
		LIMIT 1`

	return r.getOne(ctx, query)
}

func (r *schemaRepo) DemoteDefault(ctx context.Context, name, appName string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE schemas SET is_default = false
		WHERE lower(schema_name) = lower($1) AND app_name = $2 AND is_default`,
		name, appName)
	if err != nil {
		return 0, fmt.Errorf("ошибка снятия флага по умолчанию: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *schemaRepo) SetDefault(ctx context.Context, id string, isDefault bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE schemas SET is_default = $2 WHERE id = $1`, id, isDefault)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: в семействе уже есть схема по умолчанию", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления флага по умолчанию: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *schemaRepo) Create(ctx context.Context, s *model.Schema) error {
	query := `
		INSERT INTO schemas (id, schema_name, schema_version, app_name, is_default, file_ref, owner)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.Name, s.Version, s.AppName, s.IsDefault, s.FileRef, s.Owner,
	).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: схема %s %s уже загружена", ErrConflict, s.Name, s.Version)
		}
		return fmt.Errorf("ошибка создания схемы: %w", err)
	}
	return nil
}

func (r *schemaRepo) GetByID(ctx context.Context, id string) (*model.Schema, error) {
	return r.getOne(ctx, `SELECT `+schemaColumns+` FROM schemas WHERE id = $1`, id)
}

func (r *schemaRepo) ListByApp(ctx context.Context, appName string) ([]*model.Schema, error) {
	query := `SELECT ` + schemaColumns + `
		FROM schemas
		WHERE ($1::text = '' OR app_name = $1::text)
		ORDER BY schema_name, schema_version`

	rows, err := r.db.Query(ctx, query, appName)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка схем: %w", err)
	}
	defer rows.Close()

	var result []*model.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения схемы: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *schemaRepo) getOne(ctx context.Context, query string, args ...any) (*model.Schema, error) {
	s, err := scanSchema(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения схемы: %w", err)
	}
	return s, nil
}

func scanSchema(row pgx.Row) (*model.Schema, error) {
	s := &model.Schema{}
	err := row.Scan(&s.ID, &s.Name, &s.Version, &s.AppName, &s.IsDefault, &s.FileRef, &s.Owner, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
