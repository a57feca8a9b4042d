// handler.go — основной обработчик API Schema Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/schema-module/internal/api/errors"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
)

// APIHandler — основной обработчик API Schema Module.
type APIHandler struct {
	health        *HealthHandler
	schemas       *service.SchemaService
	forms         *service.FormService
	visualization *service.VisualizationService
	maxUpload     int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUpload — предельный размер multipart-запроса загрузки схемы.
func NewAPIHandler(
	health *HealthHandler,
	schemas *service.SchemaService,
	forms *service.FormService,
	visualization *service.VisualizationService,
	maxUpload int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		schemas:       schemas,
		forms:         forms,
		visualization: visualization,
		maxUpload:     maxUpload,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// Mount регистрирует маршруты API в роутере.
func (h *APIHandler) Mount(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/schemas", func(r chi.Router) {
			r.Post("/", h.UploadSchema)
			r.Get("/", h.ListSchemas)
			r.Get("/default", h.GetDefaultSchema)

			r.Route("/{schema_id}", func(r chi.Router) {
				r.Get("/", h.GetSchema)
				r.Get("/file", h.GetSchemaFile)
				r.Get("/property-map", h.GetPropertyMap)
				r.Get("/form-fields", h.GetFormFields)
				r.Post("/validate", h.ValidateRecord)
				r.Post("/default", h.PromoteDefault)
				r.Get("/fields/{kind}", h.ListFields)
			})
		})

		r.Get("/public-database-types", h.ListDatabaseTypes)
		r.Post("/public-database-types", h.CreateDatabaseType)

		r.Get("/metadata-visualization", h.GetVisualization)
		r.Put("/metadata-visualization", h.SaveVisualization)
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500 без подробностей.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDocument):
		apierrors.InvalidDocument(w, err.Error())
	case errors.Is(err, service.ErrInvalidSchemaStructure):
		apierrors.InvalidSchemaStructure(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnknownSchemaID), errors.Is(err, service.ErrFileNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrSchemaNotDefined):
		apierrors.SchemaNotDefined(w, err.Error())
	case errors.Is(err, service.ErrDuplicateSchema):
		apierrors.DuplicateSchema(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrNoSelectionMade):
		apierrors.NoSelectionMade(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
