// visualization.go — обработчики /api/v1/metadata-visualization.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/schema-module/internal/api/errors"
	"github.com/bigkaa/goartstore/schema-module/internal/service"
)

type saveVisualizationRequest struct {
	SchemaID string  `json:"schema_id"`
	Rows     [][]any `json:"rows"`
}

// GetVisualization — GET /api/v1/metadata-visualization.
// 204, если выбор ещё не сохранялся.
func (h *APIHandler) GetVisualization(w http.ResponseWriter, r *http.Request) {
	sel, err := h.visualization.GetSelection(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if sel == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sample": selectionPairs(sel.Sample),
		"batch":  selectionPairs(sel.Batch),
	})
}

// SaveVisualization — PUT /api/v1/metadata-visualization.
// Заменяет выбор полей целиком.
func (h *APIHandler) SaveVisualization(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req saveVisualizationRequest
	if err := dec.Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	saved, err := h.visualization.SaveSelection(r.Context(), req.SchemaID, req.Rows)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": saved})
}

// selectionPairs — [[label, order], ...].
func selectionPairs(entries []service.SelectionEntry) [][]any {
	pairs := make([][]any, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, []any{e.Label, e.Order})
	}
	return pairs
}
