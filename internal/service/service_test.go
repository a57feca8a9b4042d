package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
	"github.com/bigkaa/goartstore/schema-module/internal/lock"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
	"github.com/bigkaa/goartstore/schema-module/internal/repository/sqlite"
	"github.com/bigkaa/goartstore/schema-module/internal/storage/filestore"
)

// relecovSchema — документ схемы с полями всех реестров, enum и одним
// некорректным свойством (без label).
const relecovSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title": "Relecov",
	"version": "1.0",
	"required": ["host_disease", "lineage_name"],
	"properties": {
		"host_disease": {
			"label": "Host disease",
			"classification": "Host information",
			"fill_mode": "sample",
			"ontology": "EFO:0000408",
			"enum": ["COVID-19 [SNOMED:840539006]", "Unknown"]
		},
		"sample_id": {
			"label": "Sample ID",
			"classification": "Bioinformatic analysis",
			"fill_mode": "sample",
			"sample_name": true
		},
		"bioinfo_tool": {
			"label": "Bioinformatics tool",
			"classification": "Bioinformatic Analysis fields",
			"fill_mode": "batch"
		},
		"lineage_name": {
			"label": "Lineage name",
			"classification": "Lineage fields",
			"fill_mode": "sample"
		},
		"gisaid_accession_id": {
			"label": "GISAID id",
			"classification": "Public databases",
			"fill_mode": "sample"
		},
		"ena_sample_accession": {
			"label": "ENA sample",
			"classification": "Public databases",
			"fill_mode": "sample"
		},
		"broken": {
			"description": "свойство без label"
		}
	}
}`

// testEnv — сервисы поверх SQLite в памяти и временной директории.
type testEnv struct {
	store  *sqlite.Store
	files  *filestore.FileStore
	cache  *CacheService
	schema *SchemaService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore позволяет подменить Store (обёртки с ошибками).
func newTestEnvWithStore(t *testing.T, wrap func(*sqlite.Store) repository.Store) *testEnv {
	t.Helper()

	st, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.Open() ошибка: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	files, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New() ошибка: %v", err)
	}

	var store repository.Store = st
	if wrap != nil {
		store = wrap(st)
	}

	cache := NewCacheService(16, time.Minute)
	svc := NewSchemaService(store, files, lock.NewLocal(), cache, SchemaServiceConfig{
		SchemasFolder: "schemas",
		MaxSchemaSize: 1 << 20,
		IngestTimeout: 10 * time.Second,
		Rules:         schemadoc.DefaultRules(),
	}, discardLogger())

	return &testEnv{store: st, files: files, cache: cache, schema: svc}
}

// addTypes регистрирует типы публичных БД.
func (e *testEnv) addTypes(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := e.schema.CreateDatabaseType(context.Background(), name); err != nil {
			t.Fatalf("CreateDatabaseType(%s) ошибка: %v", name, err)
		}
	}
}

// ingest загружает документ в приложение relecov.
func (e *testEnv) ingest(t *testing.T, doc string, isDefault bool) (*IngestResult, error) {
	t.Helper()
	return e.schema.Ingest(context.Background(), IngestRequest{
		Filename: "relecov.json",
		Data:     strings.NewReader(doc),
		AppName:  "relecov",
		Default:  isDefault,
		Owner:    "admin",
	})
}

// mustIngest загружает документ и падает при ошибке.
func (e *testEnv) mustIngest(t *testing.T, doc string, isDefault bool) *IngestResult {
	t.Helper()
	res, err := e.ingest(t, doc, isDefault)
	if err != nil {
		t.Fatalf("Ingest() ошибка: %v", err)
	}
	return res
}

// storedFiles — количество сохранённых исходных документов.
func (e *testEnv) storedFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.files.DataDir(), "schemas"))
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("ошибка чтения директории: %v", err)
	}
	return len(entries)
}

// schemaCount — количество схем в хранилище.
func (e *testEnv) schemaCount(t *testing.T) int {
	t.Helper()
	list, err := e.schema.ListSchemas(context.Background(), "")
	if err != nil {
		t.Fatalf("ListSchemas() ошибка: %v", err)
	}
	return len(list)
}

// withVersion подменяет версию в документе relecovSchema.
func withVersion(version string) string {
	return strings.Replace(relecovSchema, `"version": "1.0"`, `"version": "`+version+`"`, 1)
}

// failingProperties — репозиторий свойств, отказывающий на одном имени.
type failingProperties struct {
	repository.PropertyRepository
	failOn string
}

func (f failingProperties) Create(ctx context.Context, p *model.SchemaProperty) error {
	if p.PropertyName == f.failOn {
		return errors.New("нарушение ограничения данных")
	}
	return f.PropertyRepository.Create(ctx, p)
}

// failingStore — Store, у которого сохранение одного свойства всегда падает.
type failingStore struct {
	*sqlite.Store
	failOn string
}

func (s failingStore) Repos() *repository.Repositories {
	repos := *s.Store.Repos()
	repos.Properties = failingProperties{PropertyRepository: repos.Properties, failOn: s.failOn}
	return &repos
}
