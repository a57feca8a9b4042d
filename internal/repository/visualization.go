package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
)

// VisualizationRepository — выбор полей формы метаданных.
type VisualizationRepository interface {
	// DeleteAll удаляет все записи, возвращает число удалённых.
	DeleteAll(ctx context.Context) (int64, error)
	Create(ctx context.Context, v *model.MetadataVisualization) error
	// List возвращает все записи по возрастанию order.
	List(ctx context.Context) ([]*model.MetadataVisualization, error)
}

type visualizationRepo struct {
	db DBTX
}

// NewVisualizationRepository создаёт репозиторий выбора полей формы.
func NewVisualizationRepository(db DBTX) VisualizationRepository {
	return &visualizationRepo{db: db}
}

func (r *visualizationRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM metadata_visualizations`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки выбора полей: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *visualizationRepo) Create(ctx context.Context, v *model.MetadataVisualization) error {
	query := `
		INSERT INTO metadata_visualizations (id, schema_id, property_name, label_name,
			display_order, in_use, fill_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		v.ID, v.SchemaID, v.PropertyName, v.LabelName, v.Order, v.InUse, v.FillMode)
	if err != nil {
		return fmt.Errorf("ошибка сохранения поля %s: %w", v.PropertyName, err)
	}
	return nil
}

func (r *visualizationRepo) List(ctx context.Context) ([]*model.MetadataVisualization, error) {
	query := `
		SELECT id, schema_id, property_name, label_name, display_order, in_use, fill_mode
		FROM metadata_visualizations
		ORDER BY display_order, property_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выбора полей: %w", err)
	}
	defer rows.Close()

	var result []*model.MetadataVisualization
	for rows.Next() {
		v := &model.MetadataVisualization{}
		if err := rows.Scan(&v.ID, &v.SchemaID, &v.PropertyName, &v.LabelName, &v.Order, &v.InUse, &v.FillMode); err != nil {
			return nil, fmt.Errorf("ошибка чтения поля формы: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
