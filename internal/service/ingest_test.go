package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
	"github.com/bigkaa/goartstore/schema-module/internal/repository/sqlite"
)

func TestIngest_Success(t *testing.T) {
	env := newTestEnv(t)
	env.addTypes(t, "ena", "gisaid")
	ctx := context.Background()

	res := env.mustIngest(t, relecovSchema, true)

	if res.Schema.Name != "Relecov" || res.Schema.Version != "1.0" || !res.Schema.IsDefault {
		t.Errorf("неожиданная схема: %+v", res.Schema)
	}
	if res.Schema.Owner != "admin" {
		t.Errorf("Owner = %q, ожидается admin", res.Schema.Owner)
	}
	if res.Properties != 6 {
		t.Errorf("Properties = %d, ожидается 6", res.Properties)
	}
	if res.Options != 2 {
		t.Errorf("Options = %d, ожидается 2", res.Options)
	}
	if res.BioinfoFields != 1 || res.LineageFields != 1 || res.PublicDatabaseFields != 2 {
		t.Errorf("реестры: bioinfo=%d lineage=%d public=%d, ожидается 1/1/2",
			res.BioinfoFields, res.LineageFields, res.PublicDatabaseFields)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].PropertyKey != "broken" || res.Skipped[0].Stage != StageProperty {
		t.Errorf("Skipped = %+v, ожидается только broken на этапе property", res.Skipped)
	}
	if res.Message == "" {
		t.Error("Message не должен быть пустым")
	}
	if env.storedFiles(t) != 1 {
		t.Errorf("сохранено документов: %d, ожидается 1", env.storedFiles(t))
	}

	display, err := env.schema.GetSchemaDisplay(ctx, res.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchemaDisplay() ошибка: %v", err)
	}
	byName := make(map[string]*model.SchemaProperty)
	for _, p := range display.Properties {
		byName[p.PropertyName] = p
	}

	disease := byName["host_disease"]
	if disease == nil {
		t.Fatal("свойство host_disease не сохранено")
	}
	if !disease.Required || !disease.HasOptions {
		t.Errorf("host_disease: required=%v has_options=%v, ожидается true/true", disease.Required, disease.HasOptions)
	}
	if disease.Ontology != "EFO:0000408" || disease.FillMode != "sample" {
		t.Errorf("host_disease: ontology=%q fill_mode=%q", disease.Ontology, disease.FillMode)
	}
	if len(disease.Options) != 2 {
		t.Fatalf("вариантов host_disease: %d, ожидается 2", len(disease.Options))
	}
	first, second := disease.Options[0], disease.Options[1]
	if first.EnumValue != "COVID-19" || first.OntologyCode == nil || *first.OntologyCode != "SNOMED:840539006" {
		t.Errorf("первый вариант: %q / %v", first.EnumValue, first.OntologyCode)
	}
	if second.EnumValue != "Unknown" || second.OntologyCode != nil {
		t.Errorf("второй вариант: %q / %v", second.EnumValue, second.OntologyCode)
	}

	if byName["bioinfo_tool"].Required {
		t.Error("bioinfo_tool не входит в required")
	}
	if _, ok := byName["broken"]; ok {
		t.Error("свойство без label не должно сохраняться")
	}
}

func TestIngest_FieldRegistries(t *testing.T) {
	env := newTestEnv(t)
	env.addTypes(t, "ena", "gisaid", "gisaid_accession")
	ctx := context.Background()

	res := env.mustIngest(t, relecovSchema, false)
	id := res.Schema.ID

	bioinfo, err := env.schema.ListFields(ctx, model.FieldKindBioinfo, id)
	if err != nil {
		t.Fatalf("ListFields(bioinfo) ошибка: %v", err)
	}
	if len(bioinfo) != 1 || bioinfo[0].PropertyName != "bioinfo_tool" {
		t.Errorf("bioinfo = %+v, ожидается только bioinfo_tool (sample_id исключён маркером)", bioinfo)
	}

	lineage, err := env.schema.ListFields(ctx, model.FieldKindLineage, id)
	if err != nil {
		t.Fatalf("ListFields(lineage) ошибка: %v", err)
	}
	if len(lineage) != 1 || lineage[0].PropertyName != "lineage_name" || lineage[0].LabelName != "Lineage name" {
		t.Errorf("lineage = %+v", lineage)
	}
	for _, f := range bioinfo {
		if f.PropertyName == "lineage_name" {
			t.Error("поле lineage не должно попадать в bioinfo")
		}
	}

	public, err := env.schema.ListFields(ctx, model.FieldKindPublicDatabase, id)
	if err != nil {
		t.Fatalf("ListFields(public) ошибка: %v", err)
	}
	types := make(map[string]string)
	for _, f := range public {
		if f.DatabaseType == nil {
			t.Errorf("у поля %s не определён тип БД", f.PropertyName)
			continue
		}
		types[f.PropertyName] = *f.DatabaseType
	}
	// Самое длинное совпадение побеждает
	if types["gisaid_accession_id"] != "gisaid_accession" {
		t.Errorf("тип gisaid_accession_id = %q, ожидается gisaid_accession", types["gisaid_accession_id"])
	}
	if types["ena_sample_accession"] != "ena" {
		t.Errorf("тип ena_sample_accession = %q, ожидается ena", types["ena_sample_accession"])
	}
}

func TestIngest_PublicDatabaseWithoutType(t *testing.T) {
	env := newTestEnv(t)
	res := env.mustIngest(t, relecovSchema, false)

	public, err := env.schema.ListFields(context.Background(), model.FieldKindPublicDatabase, res.Schema.ID)
	if err != nil {
		t.Fatalf("ListFields() ошибка: %v", err)
	}
	if len(public) != 2 {
		t.Fatalf("полей публичных БД: %d, ожидается 2", len(public))
	}
	for _, f := range public {
		if f.DatabaseTypeID != nil || f.DatabaseType != nil {
			t.Errorf("поле %s: тип должен быть NULL без известных типов", f.PropertyName)
		}
	}
}

func TestIngest_RegistryEntriesRelinked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.mustIngest(t, relecovSchema, true)
	v2 := env.mustIngest(t, withVersion("2.0"), true)

	l1, err := env.schema.ListFields(ctx, model.FieldKindLineage, v1.Schema.ID)
	if err != nil {
		t.Fatalf("ListFields(v1) ошибка: %v", err)
	}
	l2, err := env.schema.ListFields(ctx, model.FieldKindLineage, v2.Schema.ID)
	if err != nil {
		t.Fatalf("ListFields(v2) ошибка: %v", err)
	}
	if len(l1) != 1 || len(l2) != 1 {
		t.Fatalf("lineage v1=%d v2=%d, ожидается 1/1", len(l1), len(l2))
	}
	if l1[0].ID != l2[0].ID {
		t.Error("повторная загрузка должна связывать существующую запись реестра, а не создавать новую")
	}
}

func TestIngest_InvalidDocument(t *testing.T) {
	env := newTestEnv(t)

	for _, doc := range []string{`{not json`, `[1, 2]`, `null`, ``} {
		_, err := env.ingest(t, doc, false)
		if !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("Ingest(%q): ожидалась ErrInvalidDocument, получено %v", doc, err)
		}
		if errors.Is(err, ErrInvalidSchemaStructure) {
			t.Errorf("Ingest(%q): проверка структуры не должна выполняться", doc)
		}
	}

	if env.schemaCount(t) != 0 {
		t.Error("схемы не должны создаваться")
	}
	if env.storedFiles(t) != 0 {
		t.Error("не-JSON документ не сохраняется")
	}
}

func TestIngest_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.schema.cfg.MaxSchemaSize = 16

	if _, err := env.ingest(t, relecovSchema, false); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("ожидалась ErrInvalidDocument для большого документа, получено %v", err)
	}
}

func TestIngest_MissingTopLevelKeys(t *testing.T) {
	docs := map[string]string{
		"title":      `{"version": "1", "properties": {}, "required": []}`,
		"version":    `{"title": "T", "properties": {}, "required": []}`,
		"properties": `{"title": "T", "version": "1", "required": []}`,
		"required":   `{"title": "T", "version": "1", "properties": {}}`,
	}

	for key, doc := range docs {
		t.Run(key, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.ingest(t, doc, true)
			if !errors.Is(err, ErrInvalidSchemaStructure) {
				t.Fatalf("ожидалась ErrInvalidSchemaStructure, получено %v", err)
			}
			if env.schemaCount(t) != 0 {
				t.Error("схема не должна создаваться")
			}
			if env.storedFiles(t) != 1 {
				t.Error("документ сохраняется до проверки структуры")
			}
		})
	}
}

func TestIngest_WrongTopLevelTypes(t *testing.T) {
	env := newTestEnv(t)

	docs := []string{
		`{"title": "T", "version": "1", "properties": [], "required": []}`,
		`{"title": "T", "version": "1", "properties": {}, "required": "a"}`,
		`{"title": null, "version": "1", "properties": {}, "required": []}`,
	}
	for _, doc := range docs {
		if _, err := env.ingest(t, doc, false); !errors.Is(err, ErrInvalidSchemaStructure) {
			t.Errorf("Ingest(%s): ожидалась ErrInvalidSchemaStructure, получено %v", doc, err)
		}
	}
	if env.schemaCount(t) != 0 {
		t.Error("схемы не должны создаваться")
	}
}

func TestIngest_EmptyTitleAccepted(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.ingest(t, `{"title": "", "version": "1", "properties": {}, "required": []}`, false)
	if err != nil {
		t.Fatalf("документ с пустым title должен загружаться: %v", err)
	}
	if res.Schema.Name != "" || res.Properties != 0 {
		t.Errorf("Name = %q, Properties = %d", res.Schema.Name, res.Properties)
	}
}

func TestIngest_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.schema.Ingest(context.Background(), IngestRequest{
		Filename: "relecov.json",
		Data:     strings.NewReader(relecovSchema),
		AppName:  "  ",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation без app_name, получено %v", err)
	}
}

func TestIngest_Duplicate(t *testing.T) {
	env := newTestEnv(t)

	env.mustIngest(t, relecovSchema, true)

	// Имя и версия сравниваются без учёта регистра
	dup := strings.Replace(relecovSchema, `"title": "Relecov"`, `"title": "RELECOV"`, 1)
	_, err := env.ingest(t, dup, false)
	if !errors.Is(err, ErrDuplicateSchema) {
		t.Fatalf("ожидалась ErrDuplicateSchema, получено %v", err)
	}

	env.mustIngest(t, withVersion("2.0-rc"), false)
	_, err = env.ingest(t, withVersion("2.0-RC"), false)
	if !errors.Is(err, ErrDuplicateSchema) {
		t.Fatalf("версия в другом регистре: ожидалась ErrDuplicateSchema, получено %v", err)
	}

	if env.schemaCount(t) != 2 {
		t.Errorf("схем: %d, ожидается 2", env.schemaCount(t))
	}
	def, err := env.schema.GetDefaultSchema(context.Background(), "relecov", "relecov")
	if err != nil {
		t.Fatalf("GetDefaultSchema() ошибка: %v", err)
	}
	if def.Version != "1.0" {
		t.Error("отклонённый дубликат не должен менять схему по умолчанию")
	}
}

func TestIngest_DefaultDemotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.mustIngest(t, relecovSchema, true)
	b := env.mustIngest(t, withVersion("2.0"), true)

	def, err := env.schema.GetDefaultSchema(ctx, "Relecov", "relecov")
	if err != nil {
		t.Fatalf("GetDefaultSchema() ошибка: %v", err)
	}
	if def.ID != b.Schema.ID {
		t.Errorf("схема по умолчанию = %s, ожидается версия 2.0", def.Version)
	}

	old, err := env.schema.GetSchema(ctx, a.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchema() ошибка: %v", err)
	}
	if old.IsDefault {
		t.Error("прежняя схема по умолчанию должна быть снята с флага")
	}

	// Загрузка не по умолчанию не трогает текущую схему по умолчанию
	env.mustIngest(t, withVersion("3.0"), false)
	def, err = env.schema.GetDefaultSchema(ctx, "Relecov", "relecov")
	if err != nil {
		t.Fatalf("GetDefaultSchema() ошибка: %v", err)
	}
	if def.ID != b.Schema.ID {
		t.Error("схема по умолчанию не должна меняться при загрузке без флага")
	}
}

func TestIngest_PartialTolerance(t *testing.T) {
	env := newTestEnvWithStore(t, func(st *sqlite.Store) repository.Store {
		return failingStore{Store: st, failOn: "lineage_name"}
	})

	res, err := env.ingest(t, relecovSchema, false)
	if err != nil {
		t.Fatalf("частичная ошибка не должна прерывать загрузку: %v", err)
	}
	if res.Properties != 5 {
		t.Errorf("Properties = %d, ожидается 5", res.Properties)
	}

	var found bool
	for _, sk := range res.Skipped {
		if sk.PropertyKey == "lineage_name" && sk.Stage == StageProperty {
			found = true
			if !strings.Contains(sk.Reason, "нарушение ограничения") {
				t.Errorf("Reason = %q", sk.Reason)
			}
		}
	}
	if !found {
		t.Errorf("lineage_name должен быть в Skipped: %+v", res.Skipped)
	}

	display, err := env.schema.GetSchemaDisplay(context.Background(), res.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchemaDisplay() ошибка: %v", err)
	}
	if len(display.Properties) != 5 {
		t.Errorf("сохранено свойств: %d, ожидается 5", len(display.Properties))
	}
}

func TestIngest_NonStringEnumEntry(t *testing.T) {
	env := newTestEnv(t)
	doc := `{
		"title": "T", "version": "1", "required": [],
		"properties": {"result": {"label": "Result", "enum": [1, "Positive [SNOMED:10828004]"]}}
	}`

	res := env.mustIngest(t, doc, false)
	if res.Options != 1 {
		t.Errorf("Options = %d, ожидается 1", res.Options)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Stage != StageOption {
		t.Errorf("Skipped = %+v, ожидается один пропуск на этапе option", res.Skipped)
	}

	display, err := env.schema.GetSchemaDisplay(context.Background(), res.Schema.ID)
	if err != nil {
		t.Fatalf("GetSchemaDisplay() ошибка: %v", err)
	}
	opts := display.Properties[0].Options
	if len(opts) != 1 || opts[0].Position != 1 || opts[0].EnumValue != "Positive" {
		t.Errorf("варианты: %+v", opts)
	}
}

func TestIngest_ConcurrentSameIdentity(t *testing.T) {
	env := newTestEnv(t)

	const workers = 5
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.ingest(t, relecovSchema, true)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateSchema):
			dup++
		default:
			t.Errorf("неожиданная ошибка: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Errorf("успешных %d, дубликатов %d; ожидается 1 и %d", ok, dup, workers-1)
	}
	if env.schemaCount(t) != 1 {
		t.Errorf("схем: %d, ожидается 1", env.schemaCount(t))
	}
}
