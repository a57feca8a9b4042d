// database_types.go — обработчики /api/v1/public-database-types.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goartstore/schema-module/internal/api/errors"
)

type databaseTypeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListDatabaseTypes — GET /api/v1/public-database-types.
func (h *APIHandler) ListDatabaseTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.schemas.ListDatabaseTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]databaseTypeResponse, 0, len(types))
	for _, t := range types {
		items = append(items, databaseTypeResponse{ID: t.ID, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateDatabaseType — POST /api/v1/public-database-types.
func (h *APIHandler) CreateDatabaseType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	t, err := h.schemas.CreateDatabaseType(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, databaseTypeResponse{ID: t.ID, Name: t.Name})
}
