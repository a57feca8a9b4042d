package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
)

// DatabaseTypeRepository — справочник типов публичных баз данных.
type DatabaseTypeRepository interface {
	Create(ctx context.Context, t *model.PublicDatabaseType) error
	GetByName(ctx context.Context, name string) (*model.PublicDatabaseType, error)
	// List возвращает типы, упорядоченные по имени.
	List(ctx context.Context) ([]*model.PublicDatabaseType, error)
}

type databaseTypeRepo struct {
	db DBTX
}

// NewDatabaseTypeRepository создаёт репозиторий типов публичных БД.
func NewDatabaseTypeRepository(db DBTX) DatabaseTypeRepository {
	return &databaseTypeRepo{db: db}
}

func (r *databaseTypeRepo) Create(ctx context.Context, t *model.PublicDatabaseType) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO public_database_types (id, type_name) VALUES ($1, $2)`, t.ID, t.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: тип %s", ErrConflict, t.Name)
		}
		return fmt.Errorf("ошибка создания типа публичной БД: %w", err)
	}
	return nil
}

func (r *databaseTypeRepo) GetByName(ctx context.Context, name string) (*model.PublicDatabaseType, error) {
	t := &model.PublicDatabaseType{}
	err := r.db.QueryRow(ctx,
		`SELECT id, type_name FROM public_database_types WHERE type_name = $1`, name,
	).Scan(&t.ID, &t.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения типа публичной БД: %w", err)
	}
	return t, nil
}

func (r *databaseTypeRepo) List(ctx context.Context) ([]*model.PublicDatabaseType, error) {
	rows, err := r.db.Query(ctx, `SELECT id, type_name FROM public_database_types ORDER BY type_name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения типов публичных БД: %w", err)
	}
	defer rows.Close()

	var result []*model.PublicDatabaseType
	for rows.Next() {
		t := &model.PublicDatabaseType{}
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("ошибка чтения типа публичной БД: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
