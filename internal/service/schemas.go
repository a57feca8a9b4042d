// schemas.go — сервис схем метаданных: загрузка (ingest.go), реестр схем
// по умолчанию (registry.go), реестры полей (extract.go) и чтение.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
	"github.com/bigkaa/goartstore/schema-module/internal/lock"
	"github.com/bigkaa/goartstore/schema-module/internal/repository"
	"github.com/bigkaa/goartstore/schema-module/internal/storage"
)

// FileStorage — хранилище исходных документов схем (filestore или s3store).
type FileStorage interface {
	Save(ctx context.Context, r io.Reader, folder, filename, owner string) (*storage.SaveResult, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// SchemaServiceConfig — параметры сервиса схем.
type SchemaServiceConfig struct {
	// SchemasFolder — папка исходных документов в хранилище
	SchemasFolder string
	// MaxSchemaSize — максимальный размер документа в байтах
	MaxSchemaSize int64
	// IngestTimeout — общий дедлайн загрузки (0 — без дедлайна)
	IngestTimeout time.Duration
	// Rules — правила классификации свойств
	Rules schemadoc.Rules
}

// SchemaService — загрузка и чтение схем метаданных.
type SchemaService struct {
	store  repository.Store
	files  FileStorage
	locker lock.Locker
	cache  *CacheService
	cfg    SchemaServiceConfig
	logger *slog.Logger
}

// NewSchemaService создаёт сервис схем.
// cache может быть nil — тогда свойства всегда читаются из хранилища.
func NewSchemaService(
	store repository.Store,
	files FileStorage,
	locker lock.Locker,
	cache *CacheService,
	cfg SchemaServiceConfig,
	logger *slog.Logger,
) *SchemaService {
	if cfg.SchemasFolder == "" {
		cfg.SchemasFolder = "schemas"
	}
	return &SchemaService{
		store:  store,
		files:  files,
		locker: locker,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "schema_service")),
	}
}

// SchemaDisplay — схема и её свойства для отображения.
type SchemaDisplay struct {
	Schema     *model.Schema
	Properties []*model.SchemaProperty
}

// PropertyInfo — классификация и онтология свойства.
type PropertyInfo struct {
	Classification string
	Ontology       string
}

// GetSchema возвращает схему по ID.
func (s *SchemaService) GetSchema(ctx context.Context, schemaID string) (*model.Schema, error) {
	if _, err := uuid.Parse(schemaID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchemaID, schemaID)
	}

	schema, err := s.store.Repos().Schemas.GetByID(ctx, schemaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSchemaID, schemaID)
		}
		return nil, fmt.Errorf("ошибка получения схемы: %w", err)
	}
	return schema, nil
}

// ListSchemas возвращает загруженные схемы приложения (пустое appName — все).
func (s *SchemaService) ListSchemas(ctx context.Context, appName string) ([]*model.Schema, error) {
	schemas, err := s.store.Repos().Schemas.ListByApp(ctx, appName)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка схем: %w", err)
	}
	return schemas, nil
}

// GetDefaultSchema возвращает схему по умолчанию семейства (name, app).
func (s *SchemaService) GetDefaultSchema(ctx context.Context, name, appName string) (*model.Schema, error) {
	schema, err := s.store.Repos().Schemas.FindDefault(ctx, name, appName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrSchemaNotDefined, name, appName)
		}
		return nil, fmt.Errorf("ошибка поиска схемы по умолчанию: %w", err)
	}
	return schema, nil
}

// GetAnyDefaultSchema возвращает самую свежую схему по умолчанию любого семейства.
func (s *SchemaService) GetAnyDefaultSchema(ctx context.Context) (*model.Schema, error) {
	schema, err := s.store.Repos().Schemas.FindLatestDefault(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSchemaNotDefined
		}
		return nil, fmt.Errorf("ошибка поиска схемы по умолчанию: %w", err)
	}
	return schema, nil
}

// GetSchemaDisplay возвращает схему со свойствами, упорядоченными по имени свойства.
func (s *SchemaService) GetSchemaDisplay(ctx context.Context, schemaID string) (*SchemaDisplay, error) {
	schema, err := s.GetSchema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	props, err := s.properties(ctx, schema.ID)
	if err != nil {
		return nil, err
	}
	return &SchemaDisplay{Schema: schema, Properties: props}, nil
}

// GetSchemaPropertyMap возвращает property_name → {classification, ontology}.
func (s *SchemaService) GetSchemaPropertyMap(ctx context.Context, schemaID string) (map[string]PropertyInfo, error) {
	schema, err := s.GetSchema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	props, err := s.properties(ctx, schema.ID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]PropertyInfo, len(props))
	for _, p := range props {
		result[p.PropertyName] = PropertyInfo{Classification: p.Classification, Ontology: p.Ontology}
	}
	return result, nil
}

// OpenSchemaFile открывает сохранённый исходный документ схемы.
// Вызывающий код обязан закрыть ReadCloser.
func (s *SchemaService) OpenSchemaFile(ctx context.Context, schemaID string) (io.ReadCloser, *model.Schema, error) {
	schema, err := s.GetSchema(ctx, schemaID)
	if err != nil {
		return nil, nil, err
	}
	if schema.FileRef == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, schemaID)
	}

	rc, err := s.files.Open(ctx, schema.FileRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, schema.FileRef)
		}
		return nil, nil, fmt.Errorf("ошибка открытия документа схемы: %w", err)
	}
	return rc, schema, nil
}

// ListFields возвращает записи реестра полей вида kind, связанные со схемой.
func (s *SchemaService) ListFields(ctx context.Context, kind model.FieldKind, schemaID string) ([]*model.RegistryField, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: неизвестный вид реестра %q", ErrValidation, kind)
	}
	if _, err := s.GetSchema(ctx, schemaID); err != nil {
		return nil, err
	}

	fields, err := s.store.Repos().Fields.ListBySchema(ctx, kind, schemaID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения реестра полей: %w", err)
	}
	return fields, nil
}

// ListDatabaseTypes возвращает известные типы публичных БД по имени.
func (s *SchemaService) ListDatabaseTypes(ctx context.Context) ([]*model.PublicDatabaseType, error) {
	types, err := s.store.Repos().DatabaseTypes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения типов публичных БД: %w", err)
	}
	return types, nil
}

// CreateDatabaseType регистрирует тип публичной БД.
// Имя используется как подстрока ключа свойства при загрузке схем.
func (s *SchemaService) CreateDatabaseType(ctx context.Context, name string) (*model.PublicDatabaseType, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: имя типа не может быть пустым", ErrValidation)
	}

	t := &model.PublicDatabaseType{ID: uuid.New().String(), Name: name}
	if err := s.store.Repos().DatabaseTypes.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: тип %s уже существует", ErrConflict, name)
		}
		return nil, fmt.Errorf("ошибка создания типа публичной БД: %w", err)
	}

	s.logger.Info("Тип публичной БД зарегистрирован", slog.String("type", name))
	return t, nil
}

// properties возвращает свойства схемы из кэша или хранилища.
func (s *SchemaService) properties(ctx context.Context, schemaID string) ([]*model.SchemaProperty, error) {
	var gen uint64
	if s.cache != nil {
		if props, ok := s.cache.Get(schemaID); ok {
			return props, nil
		}
		gen = s.cache.Generation()
	}

	props, err := s.store.Repos().Properties.ListBySchema(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свойств схемы: %w", err)
	}
	if s.cache != nil {
		s.cache.SetIfCurrent(schemaID, props, gen)
	}
	return props, nil
}
