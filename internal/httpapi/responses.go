package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
)

func entityResponse(e models.Entity) map[string]any {
	resp := map[string]any{
		"uuid":       e.UUID,
		"kind":       e.Kind,
		"status":     e.Status,
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.OrgBinding != "" {
		resp["org_binding"] = e.OrgBinding
	}
	if e.LastTransitionAt != nil {
		resp["last_transition_at"] = e.LastTransitionAt.Format(time.RFC3339Nano)
	}
	return resp
}

func entitiesResponse(entities []models.Entity) []map[string]any {
	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		out = append(out, entityResponse(e))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "bad_request",
		"detail": detail,
	})
}

// writeError maps the closed domain error set onto HTTP statuses. Storage
// errors stay opaque 500s; the structured detail of a TransitionError is
// returned so clients can refresh and retry sensibly.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var te *models.TransitionError
	if errors.As(err, &te) {
		status := http.StatusConflict
		switch te.Kind {
		case models.ErrUnauthorized:
			status = http.StatusForbidden
		case models.ErrValidationFailed, models.ErrIncompleteCorrection, models.ErrFrozenFieldEdited:
			status = http.StatusUnprocessableEntity
		case models.ErrUnknownRole:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]any{
			"error":          string(te.Kind),
			"detail":         te.Detail,
			"transition":     te.Transition,
			"current_status": te.Current,
			"entity_kind":    te.EntityKind,
			"entity_uuid":    te.EntityUUID,
		})
		return
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
		return
	}
	h.logger.ErrorContext(ctx, "request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
}
