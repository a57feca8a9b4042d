package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
)

// PropertyRepository — свойства схем и их варианты значений.
type PropertyRepository interface {
	// Create создаёт свойство; повтор имени в схеме — ErrConflict.
	Create(ctx context.Context, p *model.SchemaProperty) error
	// CreateOption создаёт вариант значения свойства.
	CreateOption(ctx context.Context, o *model.PropertyOption) error
	// ListBySchema возвращает свойства схемы по имени свойства, с вариантами в порядке enum.
	ListBySchema(ctx context.Context, schemaID string) ([]*model.SchemaProperty, error)
}

type propertyRepo struct {
	db DBTX
}

// NewPropertyRepository создаёт репозиторий свойств.
func NewPropertyRepository(db DBTX) PropertyRepository {
	return &propertyRepo{db: db}
}

func (r *propertyRepo) Create(ctx context.Context, p *model.SchemaProperty) error {
	query := `
		INSERT INTO schema_properties (id, schema_id, property_name, label, description, type,
			classification, ontology, fill_mode, required, has_options)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.SchemaID, p.PropertyName, p.Label, p.Description, p.Type,
		p.Classification, p.Ontology, p.FillMode, p.Required, p.HasOptions,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: свойство %s", ErrConflict, p.PropertyName)
		}
		return fmt.Errorf("ошибка создания свойства %s: %w", p.PropertyName, err)
	}
	return nil
}

func (r *propertyRepo) CreateOption(ctx context.Context, o *model.PropertyOption) error {
	query := `
		INSERT INTO property_options (id, property_id, position, enum_value, ontology_code)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query, o.ID, o.PropertyID, o.Position, o.EnumValue, o.OntologyCode); err != nil {
		return fmt.Errorf("ошибка создания варианта %q: %w", o.EnumValue, err)
	}
	return nil
}

func (r *propertyRepo) ListBySchema(ctx context.Context, schemaID string) ([]*model.SchemaProperty, error) {
	query := `
		SELECT id, schema_id, property_name, label, description, type,
			classification, ontology, fill_mode, required, has_options
		FROM schema_properties
		WHERE schema_id = $1
		ORDER BY property_name`

	rows, err := r.db.Query(ctx, query, schemaID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свойств: %w", err)
	}
	defer rows.Close()

	var props []*model.SchemaProperty
	byID := make(map[string]*model.SchemaProperty)
	for rows.Next() {
		p := &model.SchemaProperty{}
		if err := rows.Scan(
			&p.ID, &p.SchemaID, &p.PropertyName, &p.Label, &p.Description, &p.Type,
			&p.Classification, &p.Ontology, &p.FillMode, &p.Required, &p.HasOptions,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения свойства: %w", err)
		}
		props = append(props, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации свойств: %w", err)
	}

	if err := r.attachOptions(ctx, schemaID, byID); err != nil {
		return nil, err
	}
	return props, nil
}

// attachOptions загружает варианты значений всех свойств схемы одним запросом.
func (r *propertyRepo) attachOptions(ctx context.Context, schemaID string, byID map[string]*model.SchemaProperty) error {
	query := `
		SELECT o.id, o.property_id, o.position, o.enum_value, o.ontology_code
		FROM property_options o
		JOIN schema_properties p ON p.id = o.property_id
		WHERE p.schema_id = $1
		ORDER BY o.property_id, o.position`

	rows, err := r.db.Query(ctx, query, schemaID)
	if err != nil {
		return fmt.Errorf("ошибка получения вариантов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o model.PropertyOption
		if err := rows.Scan(&o.ID, &o.PropertyID, &o.Position, &o.EnumValue, &o.OntologyCode); err != nil {
			return fmt.Errorf("ошибка чтения варианта: %w", err)
		}
		if p, ok := byID[o.PropertyID]; ok {
			p.Options = append(p.Options, o)
		}
	}
	return rows.Err()
}
