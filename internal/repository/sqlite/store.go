// Пакет sqlite — хранилище метаданных схем на SQLite (modernc.org/sqlite):
// однопроцессный режим и тесты. Реализует repository.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bigkaa/goartstore/schema-module/internal/repository"
)

// MemoryPath — путь для базы в памяти.
const MemoryPath = ":memory:"

// timeLayout — фиксированная ширина, лексикографический порядок совпадает с хронологическим.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const ddl = `
CREATE TABLE IF NOT EXISTS schemas (
	id             TEXT PRIMARY KEY,
	schema_name    TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	app_name       TEXT NOT NULL,
	is_default     INTEGER NOT NULL DEFAULT 0,
	file_ref       TEXT NOT NULL,
	owner          TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_schemas_identity
	ON schemas (lower(schema_name), lower(schema_version), app_name);
CREATE UNIQUE INDEX IF NOT EXISTS idx_schemas_single_default
	ON schemas (lower(schema_name), app_name) WHERE is_default = 1;

CREATE TABLE IF NOT EXISTS schema_properties (
	id             TEXT PRIMARY KEY,
	schema_id      TEXT NOT NULL REFERENCES schemas (id) ON DELETE CASCADE,
	property_name  TEXT NOT NULL,
	label          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL DEFAULT '',
	ontology       TEXT NOT NULL DEFAULT '',
	fill_mode      TEXT NOT NULL DEFAULT '',
	required       INTEGER NOT NULL DEFAULT 0,
	has_options    INTEGER NOT NULL DEFAULT 0,
	UNIQUE (schema_id, property_name)
);

CREATE TABLE IF NOT EXISTS property_options (
	id            TEXT PRIMARY KEY,
	property_id   TEXT NOT NULL REFERENCES schema_properties (id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	enum_value    TEXT NOT NULL,
	ontology_code TEXT
);

CREATE TABLE IF NOT EXISTS bioinfo_analysis_fields (
	id            TEXT PRIMARY KEY,
	property_name TEXT NOT NULL UNIQUE,
	label_name    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bioinfo_analysis_field_schemas (
	field_id  TEXT NOT NULL REFERENCES bioinfo_analysis_fields (id) ON DELETE CASCADE,
	schema_id TEXT NOT NULL REFERENCES schemas (id) ON DELETE CASCADE,
	PRIMARY KEY (field_id, schema_id)
);

CREATE TABLE IF NOT EXISTS lineage_fields (
	id            TEXT PRIMARY KEY,
	property_name TEXT NOT NULL UNIQUE,
	label_name    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lineage_field_schemas (
	field_id  TEXT NOT NULL REFERENCES lineage_fields (id) ON DELETE CASCADE,
	schema_id TEXT NOT NULL REFERENCES schemas (id) ON DELETE CASCADE,
	PRIMARY KEY (field_id, schema_id)
);

CREATE TABLE IF NOT EXISTS public_database_types (
	id        TEXT PRIMARY KEY,
	type_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS public_database_fields (
	id               TEXT PRIMARY KEY,
	property_name    TEXT NOT NULL UNIQUE,
	label_name       TEXT NOT NULL,
	database_type_id TEXT REFERENCES public_database_types (id) ON DELETE SET NULL
);
CREATE TABLE IF NOT EXISTS public_database_field_schemas (
	field_id  TEXT NOT NULL REFERENCES public_database_fields (id) ON DELETE CASCADE,
	schema_id TEXT NOT NULL REFERENCES schemas (id) ON DELETE CASCADE,
	PRIMARY KEY (field_id, schema_id)
);

CREATE TABLE IF NOT EXISTS metadata_visualizations (
	id            TEXT PRIMARY KEY,
	schema_id     TEXT NOT NULL REFERENCES schemas (id) ON DELETE CASCADE,
	property_name TEXT NOT NULL,
	label_name    TEXT NOT NULL,
	display_order INTEGER NOT NULL,
	in_use        INTEGER NOT NULL DEFAULT 0,
	fill_mode     TEXT NOT NULL DEFAULT ''
);
`

// querier — общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store — repository.Store поверх SQLite.
// Используется одно соединение: SQLite допускает одного писателя,
// а база в памяти живёт, пока открыто соединение.
type Store struct {
	db    *sql.DB
	repos *repository.Repositories
	now   func() time.Time
}

// Open открывает (или создаёт) базу по пути path и применяет схему таблиц.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("создание каталога %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("включение внешних ключей: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("создание таблиц: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	s.repos = s.newRepositories(db)
	return s, nil
}

// Repos возвращает репозитории вне транзакции.
func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// RunInTx выполняет fn с репозиториями, привязанными к транзакции.
func (s *Store) RunInTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // откат после коммита — no-op

	if err := fn(s.newRepositories(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// CheckReady проверяет доступность базы для health endpoint.
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return "fail", fmt.Sprintf("SQLite недоступен: %v", err)
	}
	return "ok", "подключение активно"
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newRepositories(q querier) *repository.Repositories {
	return &repository.Repositories{
		Schemas:        &schemaRepo{q: q, now: s.now},
		Properties:     &propertyRepo{q: q},
		Fields:         &fieldRepo{q: q},
		DatabaseTypes:  &databaseTypeRepo{q: q},
		Visualizations: &visualizationRepo{q: q},
	}
}

// isUniqueViolation проверяет нарушение уникальности SQLite.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
