// extract.go — реестры полей bioinfo, lineage и public_database.
// Запись реестра общая для всех схем (по property_name) и каждый раз
// связывается с загружаемой схемой.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/schemadoc"
)

// extractFields выполняет три прохода по свойствам документа.
func (s *SchemaService) extractFields(
	ctx context.Context,
	log *slog.Logger,
	schema *model.Schema,
	defs []schemadoc.PropertyDefinition,
	result *IngestResult,
) {
	rules := s.cfg.Rules

	for _, def := range defs {
		if !rules.IsBioinfo(def) {
			continue
		}
		field := &model.RegistryField{Kind: model.FieldKindBioinfo, PropertyName: def.Key, LabelName: def.Label}
		if err := s.registerField(ctx, schema.ID, field); err != nil {
			s.skipField(log, result, def.Key, StageBioinfo, err)
			continue
		}
		result.BioinfoFields++
	}

	for _, def := range defs {
		if !rules.IsLineage(def) {
			continue
		}
		field := &model.RegistryField{Kind: model.FieldKindLineage, PropertyName: def.Key, LabelName: def.Label}
		if err := s.registerField(ctx, schema.ID, field); err != nil {
			s.skipField(log, result, def.Key, StageLineage, err)
			continue
		}
		result.LineageFields++
	}

	s.extractPublicDatabaseFields(ctx, log, schema, defs, result)
}

func (s *SchemaService) extractPublicDatabaseFields(
	ctx context.Context,
	log *slog.Logger,
	schema *model.Schema,
	defs []schemadoc.PropertyDefinition,
	result *IngestResult,
) {
	var selected []schemadoc.PropertyDefinition
	for _, def := range defs {
		if s.cfg.Rules.IsPublicDatabase(def) {
			selected = append(selected, def)
		}
	}
	if len(selected) == 0 {
		return
	}

	types, err := s.store.Repos().DatabaseTypes.List(ctx)
	if err != nil {
		for _, def := range selected {
			s.skipField(log, result, def.Key, StagePublicDatabase,
				fmt.Errorf("ошибка получения типов публичных БД: %w", err))
		}
		return
	}
	names := make([]string, 0, len(types))
	idByName := make(map[string]string, len(types))
	for _, t := range types {
		names = append(names, t.Name)
		idByName[t.Name] = t.ID
	}

	for _, def := range selected {
		field := &model.RegistryField{Kind: model.FieldKindPublicDatabase, PropertyName: def.Key, LabelName: def.Label}
		if name, ok := schemadoc.ResolveDatabaseType(def.Key, names); ok {
			id := idByName[name]
			field.DatabaseTypeID = &id
		} else {
			log.Warn("Тип публичной БД не определён",
				slog.String("property", def.Key),
			)
		}

		if err := s.registerField(ctx, schema.ID, field); err != nil {
			s.skipField(log, result, def.Key, StagePublicDatabase, err)
			continue
		}
		result.PublicDatabaseFields++
	}
}

// registerField находит или создаёт запись реестра и связывает её со схемой.
func (s *SchemaService) registerField(ctx context.Context, schemaID string, field *model.RegistryField) error {
	repo := s.store.Repos().Fields

	field.ID = uuid.New().String()
	if _, err := repo.GetOrCreate(ctx, field); err != nil {
		return err
	}
	return repo.Link(ctx, field.Kind, field.ID, schemaID)
}
