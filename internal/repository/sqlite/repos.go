package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
)

// --- Схемы ---

type schemaRepo struct {
	q   querier
	now func() time.Time
}

const schemaColumns = `id, schema_name, schema_version, app_name, is_default, file_ref, owner, created_at`

// LockFamily — no-op: единственное соединение уже сериализует транзакции.
func (r *schemaRepo) LockFamily(context.Context, string, string) error {
	return nil
}

func (r *schemaRepo) ExistsByIdentity(ctx context.Context, name, version, appName string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schemas
			WHERE lower(schema_name) = lower(?) AND lower(schema_version) = lower(?) AND app_name = ?
		)`, name, version, appName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки схемы: %w", err)
	}
	return exists, nil
}

func (r *schemaRepo) FindDefault(ctx context.Context, name, appName string) (*model.Schema, error) {
	return r.getOne(ctx, `SELECT `+schemaColumns+` FROM schemas
		WHERE lower(schema_name) = lower(?) AND app_name = ? AND is_default = 1
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, name, appName)
}

func (r *schemaRepo) FindLatestDefault(ctx context.Context) (*model.Schema, error) {
	return r.getOne(ctx, `SELECT `+schemaColumns+` FROM schemas
		WHERE is_default = 1
		ORDER BY created_at DESC, rowid DESC LIMIT 1`)
}

func (r *schemaRepo) DemoteDefault(ctx context.Context, name, appName string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE schemas SET is_default = 0
		WHERE lower(schema_name) = lower(?) AND app_name = ? AND is_default = 1`, name, appName)
	if err != nil {
		return 0, fmt.Errorf("ошибка снятия флага по умолчанию: %w", err)
	}
	return res.RowsAffected()
}

func (r *schemaRepo) SetDefault(ctx context.Context, id string, isDefault bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE schemas SET is_default = ? WHERE id = ?`, isDefault, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: в семействе уже есть схема по умолчанию", repository.ErrConflict)
		}
		return fmt.Errorf("ошибка обновления флага по умолчанию: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *schemaRepo) Create(ctx context.Context, s *model.Schema) error {
	createdAt := r.now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO schemas (id, schema_name, schema_version, app_name, is_default, file_ref, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Version, s.AppName, s.IsDefault, s.FileRef, s.Owner, formatTime(createdAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: схема %s %s уже загружена", repository.ErrConflict, s.Name, s.Version)
		}
		return fmt.Errorf("ошибка создания схемы: %w", err)
	}
	s.CreatedAt = createdAt
	return nil
}

func (r *schemaRepo) GetByID(ctx context.Context, id string) (*model.Schema, error) {
	return r.getOne(ctx, `SELECT `+schemaColumns+` FROM schemas WHERE id = ?`, id)
}

func (r *schemaRepo) ListByApp(ctx context.Context, appName string) ([]*model.Schema, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+schemaColumns+` FROM schemas
		WHERE (? = '' OR app_name = ?)
		ORDER BY schema_name, schema_version`, appName, appName)
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
	s, err := scanSchema(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения схемы: %w", err)
	}
	return s, nil
}

// rowScanner — *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchema(row rowScanner) (*model.Schema, error) {
	s := &model.Schema{}
	var createdAt string
	if err := row.Scan(&s.ID, &s.Name, &s.Version, &s.AppName, &s.IsDefault, &s.FileRef, &s.Owner, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("разбор created_at: %w", err)
	}
	s.CreatedAt = t
	return s, nil
}

// --- Свойства ---

type propertyRepo struct {
	q querier
}

func (r *propertyRepo) Create(ctx context.Context, p *model.SchemaProperty) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO schema_properties (id, schema_id, property_name, label, description, type,
			classification, ontology, fill_mode, required, has_options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SchemaID, p.PropertyName, p.Label, p.Description, p.Type,
		p.Classification, p.Ontology, p.FillMode, p.Required, p.HasOptions)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: свойство %s", repository.ErrConflict, p.PropertyName)
		}
		return fmt.Errorf("ошибка создания свойства %s: %w", p.PropertyName, err)
	}
	return nil
}

func (r *propertyRepo) CreateOption(ctx context.Context, o *model.PropertyOption) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO property_options (id, property_id, position, enum_value, ontology_code)
		VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.PropertyID, o.Position, o.EnumValue, o.OntologyCode)
	if err != nil {
		return fmt.Errorf("ошибка создания варианта %q: %w", o.EnumValue, err)
	}
	return nil
}

func (r *propertyRepo) ListBySchema(ctx context.Context, schemaID string) ([]*model.SchemaProperty, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, schema_id, property_name, label, description, type,
			classification, ontology, fill_mode, required, has_options
		FROM schema_properties
		WHERE schema_id = ?
		ORDER BY property_name`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свойств: %w", err)
	}

	var props []*model.SchemaProperty
	byID := make(map[string]*model.SchemaProperty)
	for rows.Next() {
		p := &model.SchemaProperty{}
		if err := rows.Scan(
			&p.ID, &p.SchemaID, &p.PropertyName, &p.Label, &p.Description, &p.Type,
			&p.Classification, &p.Ontology, &p.FillMode, &p.Required, &p.HasOptions,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка чтения свойства: %w", err)
		}
		props = append(props, p)
		byID[p.ID] = p
	}
	// Одно соединение: курсор закрывается до следующего запроса
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации свойств: %w", err)
	}

	optRows, err := r.q.QueryContext(ctx, `
		SELECT o.id, o.property_id, o.position, o.enum_value, o.ontology_code
		FROM property_options o
		JOIN schema_properties p ON p.id = o.property_id
		WHERE p.schema_id = ?
		ORDER BY o.property_id, o.position`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вариантов: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.PropertyOption
		if err := optRows.Scan(&o.ID, &o.PropertyID, &o.Position, &o.EnumValue, &o.OntologyCode); err != nil {
			return nil, fmt.Errorf("ошибка чтения варианта: %w", err)
		}
		if p, ok := byID[o.PropertyID]; ok {
			p.Options = append(p.Options, o)
		}
	}
	return props, optRows.Err()
}

// --- Реестры полей ---

type fieldRepo struct {
	q querier
}

func (r *fieldRepo) GetOrCreate(ctx context.Context, f *model.RegistryField) (bool, error) {
	t, err := repository.TablesFor(f.Kind)
	if err != nil {
		return false, err
	}

	var res sql.Result
	if f.Kind == model.FieldKindPublicDatabase {
		res, err = r.q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, property_name, label_name, database_type_id) VALUES (?, ?, ?, ?)
			ON CONFLICT (property_name) DO NOTHING`, t.Fields),
			f.ID, f.PropertyName, f.LabelName, f.DatabaseTypeID)
	} else {
		res, err = r.q.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, property_name, label_name) VALUES (?, ?, ?)
			ON CONFLICT (property_name) DO NOTHING`, t.Fields),
			f.ID, f.PropertyName, f.LabelName)
	}
	if err != nil {
		return false, fmt.Errorf("ошибка создания поля %s: %w", f.PropertyName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	stored, err := scanField(r.q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s f %s WHERE f.property_name = ?`,
		fieldColumns(f.Kind), t.Fields, typeJoin(f.Kind)), f.PropertyName), f.Kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, repository.ErrNotFound
		}
		return false, fmt.Errorf("ошибка получения поля %s: %w", f.PropertyName, err)
	}
	*f = *stored
	return n == 1, nil
}

func (r *fieldRepo) Link(ctx context.Context, kind model.FieldKind, fieldID, schemaID string) error {
	t, err := repository.TablesFor(kind)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (field_id, schema_id) VALUES (?, ?)`, t.Links),
		fieldID, schemaID)
	if err != nil {
		return fmt.Errorf("ошибка связывания поля со схемой: %w", err)
	}
	return nil
}

func (r *fieldRepo) ListBySchema(ctx context.Context, kind model.FieldKind, schemaID string) ([]*model.RegistryField, error) {
	t, err := repository.TablesFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s f
		JOIN %s l ON l.field_id = f.id
		%s
		WHERE l.schema_id = ?
		ORDER BY f.property_name`, fieldColumns(kind), t.Fields, t.Links, typeJoin(kind)), schemaID)
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

func scanField(row rowScanner, kind model.FieldKind) (*model.RegistryField, error) {
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

// --- Типы публичных БД ---

type databaseTypeRepo struct {
	q querier
}

func (r *databaseTypeRepo) Create(ctx context.Context, t *model.PublicDatabaseType) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO public_database_types (id, type_name) VALUES (?, ?)`, t.ID, t.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: тип %s", repository.ErrConflict, t.Name)
		}
		return fmt.Errorf("ошибка создания типа публичной БД: %w", err)
	}
	return nil
}

func (r *databaseTypeRepo) GetByName(ctx context.Context, name string) (*model.PublicDatabaseType, error) {
	t := &model.PublicDatabaseType{}
	err := r.q.QueryRowContext(ctx,
		`SELECT id, type_name FROM public_database_types WHERE type_name = ?`, name,
	).Scan(&t.ID, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения типа публичной БД: %w", err)
	}
	return t, nil
}

func (r *databaseTypeRepo) List(ctx context.Context) ([]*model.PublicDatabaseType, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, type_name FROM public_database_types ORDER BY type_name`)
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

// --- Выбор полей формы ---

type visualizationRepo struct {
	q querier
}

func (r *visualizationRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM metadata_visualizations`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки выбора полей: %w", err)
	}
	return res.RowsAffected()
}

func (r *visualizationRepo) Create(ctx context.Context, v *model.MetadataVisualization) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO metadata_visualizations (id, schema_id, property_name, label_name,
			display_order, in_use, fill_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SchemaID, v.PropertyName, v.LabelName, v.Order, v.InUse, v.FillMode)
	if err != nil {
		return fmt.Errorf("ошибка сохранения поля %s: %w", v.PropertyName, err)
	}
	return nil
}

func (r *visualizationRepo) List(ctx context.Context) ([]*model.MetadataVisualization, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, schema_id, property_name, label_name, display_order, in_use, fill_mode
		FROM metadata_visualizations
		ORDER BY display_order, property_name`)
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
