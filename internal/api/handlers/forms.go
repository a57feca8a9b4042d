// forms.go — обработчики формы метаданных: поля для выбора и проверка записи.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/schema-module/internal/api/errors"
)

type recordIssueResponse struct {
	Property string `json:"property"`
	Problem  string `json:"problem"`
}

type validateResponse struct {
	Valid  bool                  `json:"valid"`
	Issues []recordIssueResponse `json:"issues"`
}

// GetFormFields — GET /api/v1/schemas/{schema_id}/form-fields.
// Строка: [property_name, label, order, in_use, fill_mode]; order = "" вне шаблона.
func (h *APIHandler) GetFormFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.forms.FieldsForSelection(r.Context(), chi.URLParam(r, "schema_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rows := make([][]any, 0, len(fields.Fields))
	for _, f := range fields.Fields {
		var order any = ""
		if f.Order != nil {
			order = *f.Order
		}
		rows = append(rows, []any{f.PropertyName, f.Label, order, f.InUse, f.FillMode})
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema_id": fields.SchemaID, "fields": rows})
}

// ValidateRecord — POST /api/v1/schemas/{schema_id}/validate.
// Тело — JSON-объект записи метаданных.
func (h *APIHandler) ValidateRecord(w http.ResponseWriter, r *http.Request) {
	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil || record == nil {
		apierrors.ValidationError(w, "Тело запроса должно быть JSON-объектом")
		return
	}

	issues, err := h.forms.ValidateRecord(r.Context(), chi.URLParam(r, "schema_id"), record)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := validateResponse{Valid: len(issues) == 0, Issues: make([]recordIssueResponse, 0, len(issues))}
	for _, i := range issues {
		resp.Issues = append(resp.Issues, recordIssueResponse{Property: i.Property, Problem: i.Problem})
	}
	writeJSON(w, http.StatusOK, resp)
}
