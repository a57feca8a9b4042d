// ingest.go — загрузка документа схемы.
// Порядок: разбор → сохранение исходного документа → проверка структуры →
// регистрация схемы (транзакция) → свойства и варианты → реестры полей.
// Ошибки отдельных свойств не прерывают загрузку и возвращаются в IngestResult.Skipped.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
	"github.com/bigkaa/goartstore/schema-module/internal/lock"
)

// Этапы загрузки, на которых поле может быть пропущено.
const (
	StageProperty       = "property"
	StageOption         = "option"
	StageBioinfo        = "bioinfo"
	StageLineage        = "lineage"
	StagePublicDatabase = "public_database"
)

// Исходы загрузки (лейбл outcome метрики).
const (
	outcomeSuccess          = "success"
	outcomeInvalidDocument  = "invalid_document"
	outcomeInvalidStructure = "invalid_structure"
	outcomeDuplicate        = "duplicate"
	outcomeValidation       = "validation"
	outcomeError            = "error"
)

var (
	ingestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sm_schema_ingestions_total",
			Help: "Количество загрузок схем по исходу",
		},
		[]string{"outcome"},
	)

	skippedFieldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sm_schema_skipped_fields_total",
			Help: "Количество полей, пропущенных при загрузке схем, по этапу",
		},
		[]string{"stage"},
	)
)

// IngestRequest — запрос на загрузку схемы.
type IngestRequest struct {
	// Filename — имя загруженного файла
	Filename string
	// Data — содержимое документа
	Data io.Reader
	// AppName — приложение, к которому относится схема
	AppName string
	// Default — сделать схему схемой по умолчанию своего семейства
	Default bool
	// Owner — пользователь, загрузивший схему
	Owner string
}

// SkippedField — поле, не сохранённое на одном из этапов загрузки.
type SkippedField struct {
	PropertyKey string
	Stage       string
	Reason      string
}

// IngestResult — итог успешной загрузки.
type IngestResult struct {
	Schema               *model.Schema
	Properties           int
	Options              int
	BioinfoFields        int
	LineageFields        int
	PublicDatabaseFields int
	// Skipped — пропущенные поля: сначала этап property, затем option и реестры,
	// внутри этапа — в порядке документа
	Skipped []SkippedField
	Message string
}

func (r *IngestResult) skip(key, stage string, err error) {
	r.Skipped = append(r.Skipped, SkippedField{PropertyKey: key, Stage: stage, Reason: err.Error()})
	skippedFieldsTotal.WithLabelValues(stage).Inc()
}

// Ingest загружает документ схемы.
// Возвращаемая ошибка — ровно одна из ErrValidation, ErrInvalidDocument,
// ErrInvalidSchemaStructure, ErrDuplicateSchema либо внутренняя ошибка хранилища.
func (s *SchemaService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	result, outcome, err := s.ingest(ctx, req)
	ingestionsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		s.logger.Warn("Схема не загружена",
			slog.String("file", req.Filename),
			slog.String("app_name", req.AppName),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return result, nil
}

func (s *SchemaService) ingest(ctx context.Context, req IngestRequest) (*IngestResult, string, error) {
	if strings.TrimSpace(req.AppName) == "" {
		return nil, outcomeValidation, fmt.Errorf("%w: не указано приложение (app_name)", ErrValidation)
	}
	if req.Data == nil {
		return nil, outcomeValidation, fmt.Errorf("%w: нет содержимого документа", ErrValidation)
	}

	if s.cfg.IngestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.IngestTimeout)
		defer cancel()
	}

	data, err := s.readDocument(req.Data)
	if err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			return nil, outcomeInvalidDocument, err
		}
		return nil, outcomeError, err
	}

	// Loaded
	raw, err := schemadoc.Load(data)
	if err != nil {
		return nil, outcomeInvalidDocument, fmt.Errorf("%w: %w", ErrInvalidDocument, err) //nolint:errorlint // намеренный двойной wrap
	}

	// Исходный документ сохраняется до проверки структуры
	saved, err := s.files.Save(ctx, bytes.NewReader(data), s.cfg.SchemasFolder, req.Filename, req.Owner)
	if err != nil {
		return nil, outcomeError, fmt.Errorf("ошибка сохранения документа схемы: %w", err)
	}

	// Validated
	if err := schemadoc.CheckStructure(raw, schemadoc.RequiredKeys); err != nil {
		return nil, outcomeInvalidStructure, fmt.Errorf("%w: %w", ErrInvalidSchemaStructure, err) //nolint:errorlint // намеренный двойной wrap
	}
	doc, err := schemadoc.Decode(data)
	if err != nil {
		return nil, outcomeInvalidStructure, fmt.Errorf("%w: %w", ErrInvalidSchemaStructure, err) //nolint:errorlint // намеренный двойной wrap
	}

	release, err := s.locker.Lock(ctx, lock.FamilyKey(doc.Title, req.AppName))
	if err != nil {
		return nil, outcomeError, fmt.Errorf("ошибка блокировки семейства схем: %w", err)
	}
	defer release()

	// DuplicateChecked
	schema := &model.Schema{
		ID:        uuid.New().String(),
		Name:      doc.Title,
		Version:   doc.Version,
		AppName:   req.AppName,
		IsDefault: req.Default,
		FileRef:   saved.Ref,
		Owner:     req.Owner,
	}
	if err := s.registerSchema(ctx, schema); err != nil {
		if errors.Is(err, ErrDuplicateSchema) {
			return nil, outcomeDuplicate, err
		}
		return nil, outcomeError, err
	}
	if s.cache != nil {
		defer s.cache.Invalidate(schema.ID)
	}

	result := &IngestResult{Schema: schema}
	log := s.logger.With(slog.String("schema_id", schema.ID))

	// PropertiesStored, OptionsStored
	s.storeProperties(ctx, log, schema, doc, result)

	// ClassificationsExtracted
	s.extractFields(ctx, log, schema, doc.Properties, result)

	result.Message = fmt.Sprintf("Схема %s версии %s загружена: свойств %d, вариантов %d, пропущено %d",
		schema.Name, schema.Version, result.Properties, result.Options, len(result.Skipped))

	log.Info("Схема загружена",
		slog.String("schema_name", schema.Name),
		slog.String("schema_version", schema.Version),
		slog.String("app_name", schema.AppName),
		slog.Bool("is_default", schema.IsDefault),
		slog.Int("properties", result.Properties),
		slog.Int("options", result.Options),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, outcomeSuccess, nil
}

// readDocument читает документ с ограничением размера.
func (s *SchemaService) readDocument(r io.Reader) ([]byte, error) {
	if s.cfg.MaxSchemaSize > 0 {
		r = io.LimitReader(r, s.cfg.MaxSchemaSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения документа схемы: %w", err)
	}
	if s.cfg.MaxSchemaSize > 0 && int64(len(data)) > s.cfg.MaxSchemaSize {
		return nil, fmt.Errorf("%w: размер превышает %d байт", ErrInvalidDocument, s.cfg.MaxSchemaSize)
	}
	return data, nil
}

// storeProperties сохраняет свойства в порядке документа и варианты их enum.
// Сохранённое свойство не откатывается при ошибках следующих.
func (s *SchemaService) storeProperties(
	ctx context.Context,
	log *slog.Logger,
	schema *model.Schema,
	doc *schemadoc.Document,
	result *IngestResult,
) {
	repos := s.store.Repos()

	for _, rej := range doc.Rejected {
		s.skipField(log, result, rej.Key, StageProperty, rej.Err)
	}

	for _, def := range doc.Properties {
		prop := &model.SchemaProperty{
			ID:             uuid.New().String(),
			SchemaID:       schema.ID,
			PropertyName:   def.Key,
			Label:          def.Label,
			Description:    def.Description,
			Type:           def.Type,
			Classification: def.Classification,
			Ontology:       def.Ontology,
			FillMode:       def.FillMode,
			Required:       def.Required,
			HasOptions:     def.HasEnum,
		}
		if err := repos.Properties.Create(ctx, prop); err != nil {
			s.skipField(log, result, def.Key, StageProperty, err)
			continue
		}
		result.Properties++

		if !prop.HasOptions {
			continue
		}
		for pos, entry := range def.Enum {
			text, ok := entry.(string)
			if !ok {
				s.skipField(log, result, def.Key, StageOption,
					fmt.Errorf("элемент enum %d не является строкой", pos))
				continue
			}
			value := schemadoc.ParseEnum(text)
			opt := &model.PropertyOption{
				ID:           uuid.New().String(),
				PropertyID:   prop.ID,
				Position:     pos,
				EnumValue:    value.Label,
				OntologyCode: value.Code,
			}
			if err := repos.Properties.CreateOption(ctx, opt); err != nil {
				s.skipField(log, result, def.Key, StageOption, err)
				continue
			}
			result.Options++
		}
	}
}

// skipField записывает пропуск поля в результат и лог.
func (s *SchemaService) skipField(log *slog.Logger, result *IngestResult, key, stage string, cause error) {
	err := fmt.Errorf("%w: %w", ErrPropertyPersistence, cause) //nolint:errorlint // намеренный двойной wrap
	log.Warn("Поле схемы пропущено",
		slog.String("property", key),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	result.skip(key, stage, err)
}
