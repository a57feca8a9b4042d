// schemas.go — обработчики /api/v1/schemas: загрузка, список, схема по умолчанию,
// отображение схемы, исходный документ, карта свойств и реестры полей.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/schema-module/internal/api/errors"
	"github.com/bigkaa/goartstore/schema-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
)

// multipartOverhead — запас на заголовки и прочие поля формы.
const multipartOverhead = 1 << 20

type schemaResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"schema_name"`
	Version   string    `json:"schema_version"`
	AppName   string    `json:"app_name"`
	IsDefault bool      `json:"is_default"`
	FileRef   string    `json:"file_ref"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type optionResponse struct {
	Position     int     `json:"position"`
	EnumValue    string  `json:"enum_value"`
	OntologyCode *string `json:"ontology_code"`
}

type propertyResponse struct {
	PropertyName   string           `json:"property_name"`
	Label          string           `json:"label"`
	Description    string           `json:"description,omitempty"`
	Type           string           `json:"type,omitempty"`
	Classification string           `json:"classification,omitempty"`
	Ontology       string           `json:"ontology,omitempty"`
	FillMode       string           `json:"fill_mode,omitempty"`
	Required       bool             `json:"required"`
	Options        []optionResponse `json:"options,omitempty"`
}

type schemaDisplayResponse struct {
	Schema     schemaResponse     `json:"schema"`
	Properties []propertyResponse `json:"properties"`
}

type skippedResponse struct {
	PropertyKey string `json:"property_key"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

type ingestResponse struct {
	Schema               schemaResponse    `json:"schema"`
	Properties           int               `json:"properties"`
	Options              int               `json:"options"`
	BioinfoFields        int               `json:"bioinfo_fields"`
	LineageFields        int               `json:"lineage_fields"`
	PublicDatabaseFields int               `json:"public_database_fields"`
	Skipped              []skippedResponse `json:"skipped"`
	Message              string            `json:"message"`
}

type fieldResponse struct {
	ID           string  `json:"id"`
	PropertyName string  `json:"property_name"`
	LabelName    string  `json:"label_name"`
	DatabaseType *string `json:"database_type,omitempty"`
}

type propertyInfoResponse struct {
	Classification string `json:"classification"`
	Ontology       string `json:"ontology"`
}

// UploadSchema — POST /api/v1/schemas.
// Multipart form: file (обязательно), app_name (обязательно), default (on/true).
func (h *APIHandler) UploadSchema(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	result, err := h.schemas.Ingest(r.Context(), service.IngestRequest{
		Filename: header.Filename,
		Data:     file,
		AppName:  r.FormValue("app_name"),
		Default:  isChecked(r.FormValue("default")),
		Owner:    middleware.OwnerFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestToResponse(result))
}

// ListSchemas — GET /api/v1/schemas?app_name=.
func (h *APIHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.schemas.ListSchemas(r.Context(), r.URL.Query().Get("app_name"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]schemaResponse, 0, len(schemas))
	for _, s := range schemas {
		items = append(items, schemaToResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// GetDefaultSchema — GET /api/v1/schemas/default?schema_name=&app_name=.
// Без параметров возвращает самую свежую схему по умолчанию любого семейства.
func (h *APIHandler) GetDefaultSchema(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("schema_name")
	app := r.URL.Query().Get("app_name")

	var (
		schema *model.Schema
		err    error
	)
	switch {
	case name == "" && app == "":
		schema, err = h.schemas.GetAnyDefaultSchema(r.Context())
	case name == "" || app == "":
		apierrors.ValidationError(w, "Параметры schema_name и app_name задаются вместе")
		return
	default:
		schema, err = h.schemas.GetDefaultSchema(r.Context(), name, app)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemaToResponse(schema))
}

// GetSchema — GET /api/v1/schemas/{schema_id}.
func (h *APIHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	display, err := h.schemas.GetSchemaDisplay(r.Context(), chi.URLParam(r, "schema_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := schemaDisplayResponse{
		Schema:     schemaToResponse(display.Schema),
		Properties: make([]propertyResponse, 0, len(display.Properties)),
	}
	for _, p := range display.Properties {
		resp.Properties = append(resp.Properties, propertyToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSchemaFile — GET /api/v1/schemas/{schema_id}/file.
func (h *APIHandler) GetSchemaFile(w http.ResponseWriter, r *http.Request) {
	rc, schema, err := h.schemas.OpenSchemaFile(r.Context(), chi.URLParam(r, "schema_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", schema.Name+"_v"+schema.Version+".json"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Ошибка отправки документа схемы",
			slog.String("schema_id", schema.ID),
			slog.String("error", err.Error()),
		)
	}
}

// GetPropertyMap — GET /api/v1/schemas/{schema_id}/property-map.
func (h *APIHandler) GetPropertyMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.schemas.GetSchemaPropertyMap(r.Context(), chi.URLParam(r, "schema_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make(map[string]propertyInfoResponse, len(m))
	for name, info := range m {
		resp[name] = propertyInfoResponse{Classification: info.Classification, Ontology: info.Ontology}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PromoteDefault — POST /api/v1/schemas/{schema_id}/default.
func (h *APIHandler) PromoteDefault(w http.ResponseWriter, r *http.Request) {
	schema, err := h.schemas.PromoteDefault(r.Context(), chi.URLParam(r, "schema_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemaToResponse(schema))
}

// ListFields — GET /api/v1/schemas/{schema_id}/fields/{kind}.
// kind: bioinfo, lineage, public-databases.
func (h *APIHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	kind := fieldKindFromPath(chi.URLParam(r, "kind"))

	fields, err := h.schemas.ListFields(r.Context(), kind, chi.URLParam(r, "schema_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]fieldResponse, 0, len(fields))
	for _, f := range fields {
		items = append(items, fieldResponse{
			ID:           f.ID,
			PropertyName: f.PropertyName,
			LabelName:    f.LabelName,
			DatabaseType: f.DatabaseType,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": string(kind), "items": items})
}

// --- Маппинг ---

func fieldKindFromPath(kind string) model.FieldKind {
	if kind == "public-databases" {
		return model.FieldKindPublicDatabase
	}
	return model.FieldKind(kind)
}

// isChecked — значение чекбокса формы.
func isChecked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func schemaToResponse(s *model.Schema) schemaResponse {
	return schemaResponse{
		ID:        s.ID,
		Name:      s.Name,
		Version:   s.Version,
		AppName:   s.AppName,
		IsDefault: s.IsDefault,
		FileRef:   s.FileRef,
		Owner:     s.Owner,
		CreatedAt: s.CreatedAt,
	}
}

func propertyToResponse(p *model.SchemaProperty) propertyResponse {
	resp := propertyResponse{
		PropertyName:   p.PropertyName,
		Label:          p.Label,
		Description:    p.Description,
		Type:           p.Type,
		Classification: p.Classification,
		Ontology:       p.Ontology,
		FillMode:       p.FillMode,
		Required:       p.Required,
	}
	for _, o := range p.Options {
		resp.Options = append(resp.Options, optionResponse{
			Position:     o.Position,
			EnumValue:    o.EnumValue,
			OntologyCode: o.OntologyCode,
		})
	}
	return resp
}

func ingestToResponse(res *service.IngestResult) ingestResponse {
	resp := ingestResponse{
		Schema:               schemaToResponse(res.Schema),
		Properties:           res.Properties,
		Options:              res.Options,
		BioinfoFields:        res.BioinfoFields,
		LineageFields:        res.LineageFields,
		PublicDatabaseFields: res.PublicDatabaseFields,
		Skipped:              make([]skippedResponse, 0, len(res.Skipped)),
		Message:              res.Message,
	}
	for _, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedResponse{
			PropertyKey: s.PropertyKey,
			Stage:       s.Stage,
			Reason:      s.Reason,
		})
	}
	return resp
}
