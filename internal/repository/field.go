package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
)

// FieldRepository — реестры полей (bioinfo, lineage, public_database).
// Запись уникальна по property_name внутри вида и связывается со схемами.
type FieldRepository interface {
	// GetOrCreate находит запись по property_name или создаёт новую.
	// f дополняется сохранёнными значениями; created — запись создана сейчас.
	GetOrCreate(ctx context.Context, f *model.RegistryField) (created bool, err error)
	// Link связывает запись со схемой (повторная связь — no-op).
	Link(ctx context.Context, kind model.FieldKind, fieldID, schemaID string) error
	// ListBySchema возвращает записи вида, связанные со схемой, по property_name.
	ListBySchema(ctx context.Context, kind model.FieldKind, schemaID string) ([]*model.RegistryField, error)
}

// RegistryTables — таблица записей и таблица связей для вида реестра.
type RegistryTables struct {
	Fields string
	Links  string
}

// registryTables — таблицы по видам реестра.
var registryTables = map[model.FieldKind]RegistryTables{
	model.FieldKindBioinfo:        {Fields: "bioinfo_analysis_fields", Links: "bioinfo_analysis_field_schemas"},
	model.FieldKindLineage:        {Fields: "lineage_fields", Links: "lineage_field_schemas"},
	model.FieldKindPublicDatabase: {Fields: "public_database_fields", Links: "public_database_field_schemas"},
}

// TablesFor возвращает таблицы вида реестра.
func TablesFor(kind model.FieldKind) (RegistryTables, error) {
	t, ok := registryTables[kind]
	if !ok {
		return RegistryTables{}, fmt.Errorf("неизвестный вид реестра полей: %q", kind)
	}
	return t, nil
}

type fieldRepo struct {
	db DBTX
}

// NewFieldRepository создаёт репозиторий реестров полей.
func NewFieldRepository(db DBTX) FieldRepository {
	return &fieldRepo{db: db}
}

func (r *fieldRepo) GetOrCreate(ctx context.Context, f *model.RegistryField) (bool, error) {
	t, err := TablesFor(f.Kind)
	if err != nil {
		return false, err
	}

	var insert string
	args := []any{f.ID, f.PropertyName, f.LabelName}
	if f.Kind == model.FieldKindPublicDatabase {
		insert = fmt.Sprintf(`
			INSERT INTO %s (id, property_name, label_name, database_type_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (property_name) DO NOTHING`, t.Fields)
		args = append(args, f.DatabaseTypeID)
	} else {
		insert = fmt.Sprintf(`
			INSERT INTO %s (id, property_name, label_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (property_name) DO NOTHING`, t.Fields)
	}

	tag, err := r.db.Exec(ctx, insert, args...)
	if err != nil {
		return false, fmt.Errorf("ошибка создания поля %s: %w", f.PropertyName, err)
	}

	stored, err := r.getByPropertyName(ctx, f.Kind, f.PropertyName)
	if err != nil {
		return false, err
	}
	*f = *stored
	return tag.RowsAffected() == 1, nil
}

func (r *fieldRepo) Link(ctx context.Context, kind model.FieldKind, fieldID, schemaID string) error {
	t, err := TablesFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (field_id, schema_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, t.Links)
	if _, err := r.db.Exec(ctx, query, fieldID, schemaID); err != nil {
		return fmt.Errorf("ошибка связывания поля со схемой: %w", err)
	}
	return nil
}

func (r *fieldRepo) ListBySchema(ctx context.Context, kind model.FieldKind, schemaID string) ([]*model.RegistryField, error) {
	t, err := TablesFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s f
		JOIN %s l ON l.field_id = f.id
		%s
		WHERE l.schema_id = $1
		ORDER BY f.property_name`, fieldColumns(kind), t.Fields, t.Links, typeJoin(kind))

	rows, err := r.db.Query(ctx, query, schemaID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения полей %s: %w", kind, err)
	}
	defer rows.Close()

	var result []*model.RegistryField
	for rows.Next() {
		f, err := scanField(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения поля: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fieldRepo) getByPropertyName(ctx context.Context, kind model.FieldKind, propertyName string) (*model.RegistryField, error) {
	t, _ := TablesFor(kind)
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s f
		%s
		WHERE f.property_name = $1`, fieldColumns(kind), t.Fields, typeJoin(kind))

	f, err := scanField(r.db.QueryRow(ctx, query, propertyName), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения поля %s: %w", propertyName, err)
	}
	return f, nil
}

func fieldColumns(kind model.FieldKind) string {
	if kind == model.FieldKindPublicDatabase {
		return "f.id, f.property_name, f.label_name, f.database_type_id, t.type_name"
	}
	return "f.id, f.property_name, f.label_name"
}

func typeJoin(kind model.FieldKind) string {
	if kind == model.FieldKindPublicDatabase {
		return "LEFT JOIN public_database_types t ON t.id = f.database_type_id"
	}
	return ""
}

func scanField(row pgx.Row, kind model.FieldKind) (*model.RegistryField, error) {
	f := &model.RegistryField{Kind: kind}
	dest := []any{&f.ID, &f.PropertyName, &f.LabelName}
	if kind == model.FieldKindPublicDatabase {
		dest = append(dest, &f.DatabaseTypeID, &f.DatabaseType)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return f, nil
}
