package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
	"github.com/bigkaa/goartstore/schema-module/internal/repository/sqlite"
)

func TestGetSchema_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"", "not-a-uuid", uuid.New().String()} {
		if _, err := env.schema.GetSchema(context.Background(), id); !errors.Is(err, ErrUnknownSchemaID) {
			t.Errorf("GetSchema(%q): ожидалась ErrUnknownSchemaID, получено %v", id, err)
		}
	}
}

func TestGetSchemaDisplay_OrderedByName(t *testing.T) {
	env := newTestEnv(t)
	res := env.mustIngest(t, relecovSchema, false)

	display, err := env.schema.GetSchemaDisplay(context.Background(), res.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchemaDisplay() ошибка: %v", err)
	}

	want := []string{
		"bioinfo_tool", "ena_sample_accession", "gisaid_accession_id",
		"host_disease", "lineage_name", "sample_id",
	}
	if len(display.Properties) != len(want) {
		t.Fatalf("свойств: %d, ожидается %d", len(display.Properties), len(want))
	}
	for i, name := range want {
		if display.Properties[i].PropertyName != name {
			t.Errorf("свойство %d = %s, ожидается %s", i, display.Properties[i].PropertyName, name)
		}
	}
}

func TestGetSchemaPropertyMap(t *testing.T) {
	env := newTestEnv(t)
	res := env.mustIngest(t, relecovSchema, false)

	m, err := env.schema.GetSchemaPropertyMap(context.Background(), res.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchemaPropertyMap() ошибка: %v", err)
	}
	if len(m) != 6 {
		t.Errorf("записей: %d, ожидается 6", len(m))
	}
	info := m["host_disease"]
	if info.Classification != "Host information" || info.Ontology != "EFO:0000408" {
		t.Errorf("host_disease = %+v", info)
	}
	if _, ok := m["broken"]; ok {
		t.Error("пропущенное свойство не должно попадать в карту")
	}
}

func TestGetDefaultSchema(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.schema.GetDefaultSchema(ctx, "Relecov", "relecov"); !errors.Is(err, ErrSchemaNotDefined) {
		t.Errorf("ожидалась ErrSchemaNotDefined, получено %v", err)
	}
	if _, err := env.schema.GetAnyDefaultSchema(ctx); !errors.Is(err, ErrSchemaNotDefined) {
		t.Errorf("ожидалась ErrSchemaNotDefined, получено %v", err)
	}

	// Схема не по умолчанию не считается схемой по умолчанию
	env.mustIngest(t, relecovSchema, false)
	if _, err := env.schema.GetDefaultSchema(ctx, "Relecov", "relecov"); !errors.Is(err, ErrSchemaNotDefined) {
		t.Errorf("ожидалась ErrSchemaNotDefined, получено %v", err)
	}

	res := env.mustIngest(t, withVersion("2.0"), true)
	def, err := env.schema.GetAnyDefaultSchema(ctx)
	if err != nil {
		t.Fatalf("GetAnyDefaultSchema() ошибка: %v", err)
	}
	if def.ID != res.Schema.ID {
		t.Errorf("схема по умолчанию = %s, ожидается %s", def.ID, res.Schema.ID)
	}

	// Другое приложение — другое семейство
	if _, err := env.schema.GetDefaultSchema(ctx, "Relecov", "other"); !errors.Is(err, ErrSchemaNotDefined) {
		t.Errorf("ожидалась ErrSchemaNotDefined для другого приложения, получено %v", err)
	}
}

func TestListSchemas(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustIngest(t, relecovSchema, false)
	env.mustIngest(t, withVersion("2.0"), false)

	list, err := env.schema.ListSchemas(ctx, "relecov")
	if err != nil {
		t.Fatalf("ListSchemas() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("схем: %d, ожидается 2", len(list))
	}

	other, err := env.schema.ListSchemas(ctx, "other")
	if err != nil {
		t.Fatalf("ListSchemas() ошибка: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("схем другого приложения: %d, ожидается 0", len(other))
	}
}

func TestOpenSchemaFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.mustIngest(t, relecovSchema, false)

	rc, schema, err := env.schema.OpenSchemaFile(ctx, res.Schema.ID)
	if err != nil {
		t.Fatalf("OpenSchemaFile() ошибка: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(data) != relecovSchema {
		t.Error("содержимое документа не совпадает с загруженным")
	}
	if schema.FileRef != res.Schema.FileRef {
		t.Errorf("FileRef = %q, ожидается %q", schema.FileRef, res.Schema.FileRef)
	}
}

func TestOpenSchemaFile_Missing(t *testing.T) {
	env := newTestEnv(t)
	res := env.mustIngest(t, relecovSchema, false)

	if err := os.Remove(filepath.Join(env.files.DataDir(), filepath.FromSlash(res.Schema.FileRef))); err != nil {
		t.Fatalf("ошибка удаления файла: %v", err)
	}

	_, _, err := env.schema.OpenSchemaFile(context.Background(), res.Schema.ID)
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("ожидалась ErrFileNotFound, получено %v", err)
	}
}

func TestListFields_InvalidKind(t *testing.T) {
	env := newTestEnv(t)
	res := env.mustIngest(t, relecovSchema, false)

	_, err := env.schema.ListFields(context.Background(), model.FieldKind("unknown"), res.Schema.ID)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

func TestDatabaseTypes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addTypes(t, "gisaid", "ena")

	if _, err := env.schema.CreateDatabaseType(ctx, "ena"); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидалась ErrConflict для повторного типа, получено %v", err)
	}
	if _, err := env.schema.CreateDatabaseType(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation для пустого имени, получено %v", err)
	}

	types, err := env.schema.ListDatabaseTypes(ctx)
	if err != nil {
		t.Fatalf("ListDatabaseTypes() ошибка: %v", err)
	}
	if len(types) != 2 || types[0].Name != "ena" || types[1].Name != "gisaid" {
		t.Errorf("типы: %+v, ожидается [ena gisaid]", types)
	}
}

func TestPromoteDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.mustIngest(t, relecovSchema, true)
	v2 := env.mustIngest(t, withVersion("2.0"), false)

	promoted, err := env.schema.PromoteDefault(ctx, v2.Schema.ID)
	if err != nil {
		t.Fatalf("PromoteDefault() ошибка: %v", err)
	}
	if !promoted.IsDefault {
		t.Error("IsDefault = false после назначения")
	}

	def, err := env.schema.GetDefaultSchema(ctx, "Relecov", "relecov")
	if err != nil {
		t.Fatalf("GetDefaultSchema() ошибка: %v", err)
	}
	if def.ID != v2.Schema.ID {
		t.Errorf("схема по умолчанию = %s, ожидается версия 2.0", def.Version)
	}

	old, err := env.schema.GetSchema(ctx, v1.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchema() ошибка: %v", err)
	}
	if old.IsDefault {
		t.Error("прежняя схема по умолчанию должна быть снята с флага")
	}

	// Повторное назначение ничего не меняет
	if _, err := env.schema.PromoteDefault(ctx, v2.Schema.ID); err != nil {
		t.Errorf("повторный PromoteDefault() ошибка: %v", err)
	}

	if _, err := env.schema.PromoteDefault(ctx, uuid.New().String()); !errors.Is(err, ErrUnknownSchemaID) {
		t.Errorf("ожидалась ErrUnknownSchemaID, получено %v", err)
	}
}

// conflictingSchemas — репозиторий схем, у которого назначение схемы по
// умолчанию нарушает уникальный индекс.
type conflictingSchemas struct {
	repository.SchemaRepository
}

func (conflictingSchemas) SetDefault(context.Context, string, bool) error {
	return repository.ErrConflict
}

type conflictingStore struct {
	*sqlite.Store
}

func (s conflictingStore) RunInTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	return s.Store.RunInTx(ctx, func(repos *repository.Repositories) error {
		wrapped := *repos
		wrapped.Schemas = conflictingSchemas{SchemaRepository: repos.Schemas}
		return fn(&wrapped)
	})
}

func TestPromoteDefault_ConflictMapped(t *testing.T) {
	env := newTestEnvWithStore(t, func(st *sqlite.Store) repository.Store {
		return conflictingStore{Store: st}
	})
	ctx := context.Background()

	env.mustIngest(t, relecovSchema, true)
	v2 := env.mustIngest(t, withVersion("2.0"), false)

	_, err := env.schema.PromoteDefault(ctx, v2.Schema.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидалась ErrConflict, получено %v", err)
	}
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("исходная ошибка репозитория потеряна: %v", err)
	}

	// Транзакция откатилась: прежняя схема по умолчанию сохранила флаг
	def, err := env.schema.GetDefaultSchema(ctx, "Relecov", "relecov")
	if err != nil {
		t.Fatalf("GetDefaultSchema() ошибка: %v", err)
	}
	if def.Version != "1.0" {
		t.Errorf("схема по умолчанию = %s, ожидается 1.0", def.Version)
	}
}
