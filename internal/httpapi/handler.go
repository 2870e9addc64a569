// Package httpapi exposes the workflow engine over HTTP. Handlers stay thin:
// decode, delegate, encode. Field-level document CRUD lives with the owning
// domains, not here.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mealflow/internal/auditlog"
	"mealflow/internal/correction"
	"mealflow/internal/dashboard"
	"mealflow/internal/platform/middleware"
	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/registry"
	"mealflow/internal/workflow/service"
)

// Handler handles workflow, dashboard and history endpoints.
type Handler struct {
	executor   *service.Executor
	aggregator *dashboard.Aggregator
	correction *correction.Service
	log        *auditlog.Log
	registry   *registry.Registry
	resolver   *middleware.PrincipalResolver
	logger     *slog.Logger
}

// New creates the workflow API handler.
func New(
	executor *service.Executor,
	aggregator *dashboard.Aggregator,
	corrections *correction.Service,
	log *auditlog.Log,
	reg *registry.Registry,
	resolver *middleware.PrincipalResolver,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		executor:   executor,
		aggregator: aggregator,
		correction: corrections,
		log:        log,
		registry:   reg,
		resolver:   resolver,
		logger:     logger,
	}
}

// Register mounts the workflow routes.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.RequestID)
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequireActor(h.resolver, h.logger))

	api.Post("/entities/{kind}", h.handleCreate)
	api.Post("/entities/{kind}/{uuid}/transitions/{name}", h.handleExecute)
	api.Delete("/entities/{kind}/{uuid}", h.handleDelete)
	api.Get("/entities/{kind}/{uuid}/history", h.handleHistory)
	api.Post("/entities/{kind}/{uuid}/correction", h.handleRequestCorrection)
	api.Post("/entities/{kind}/{uuid}/resubmit", h.handleResubmit)
	api.Get("/entities/{kind}/{uuid}/correction", h.handleCorrectionStatus)
	api.Get("/dashboard/{kind}", h.handleDashboard)

	r.Mount("/v1", api)
}

func (h *Handler) ref(r *http.Request) (models.Ref, bool) {
	kind := models.EntityKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		return models.Ref{}, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		return models.Ref{}, false
	}
	return models.Ref{Kind: kind, UUID: id}, true
}

type transitionRequest struct {
	Justification string `json:"justification"`
	Attachments   []struct {
		Filename   string `json:"filename"`
		ContentRef string `json:"content_ref"`
	} `json:"attachments"`
	Fields map[string]string `json:"fields"`
}

func (req transitionRequest) payload() models.Payload {
	payload := models.Payload{Justification: req.Justification, Fields: req.Fields}
	for _, a := range req.Attachments {
		payload.Attachments = append(payload.Attachments, models.Attachment{
			Filename:   a.Filename,
			ContentRef: a.ContentRef,
		})
	}
	return payload
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	kind := models.EntityKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		writeBadRequest(w, "unknown entity kind")
		return
	}
	entity, err := h.executor.Create(ctx, models.Entity{
		UUID:       uuid.New(),
		Kind:       kind,
		OrgBinding: actor.OrgBinding,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse(entity))
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	ref, ok := h.ref(r)
	if !ok {
		writeBadRequest(w, "invalid entity reference")
		return
	}
	var req transitionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}
	entity, err := h.executor.Execute(ctx, ref, chi.URLParam(r, "name"), actor, req.payload())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse(entity))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	ref, ok := h.ref(r)
	if !ok {
		writeBadRequest(w, "invalid entity reference")
		return
	}
	if err := h.executor.SoftDelete(ctx, ref, actor); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, ok := h.ref(r)
	if !ok {
		writeBadRequest(w, "invalid entity reference")
		return
	}
	var entries []map[string]any
	for entry, err := range h.log.History(ref.Kind, ref.UUID) {
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		entries = append(entries, map[string]any{
			"event_code":    entry.EventCode,
			"transition":    h.registry.TransitionName(entry.EventCode),
			"actor_id":      entry.ActorID,
			"actor_role":    entry.ActorRole,
			"justification": entry.Justification,
			"created_at":    entry.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

type correctionRequest struct {
	Justification string   `json:"justification"`
	FieldsOK      []string `json:"fields_ok"`
	FieldsForFix  []string `json:"fields_for_fix"`
}

func (h *Handler) handleRequestCorrection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	ref, ok := h.ref(r)
	if !ok {
		writeBadRequest(w, "invalid entity reference")
		return
	}
	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	entity, err := h.correction.RequestCorrection(ctx, ref, actor, req.Justification, req.FieldsOK, req.FieldsForFix)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse(entity))
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	ref, ok := h.ref(r)
	if !ok {
		writeBadRequest(w, "invalid entity reference")
		return
	}
	var req struct {
		Values map[string]string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	entity, err := h.correction.Resubmit(ctx, ref, actor, req.Values)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse(entity))
}

func (h *Handler) handleCorrectionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, ok := h.ref(r)
	if !ok {
		writeBadRequest(w, "invalid entity reference")
		return
	}
	status, err := h.correction.Status(ctx, ref)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round":          status.Round,
		"first_analysis": status.FirstAnalysis,
		"flagged_fields": status.FlaggedFields,
		"fully_approved": status.FullyApproved,
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetActor(ctx)
	kind := models.EntityKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		writeBadRequest(w, "unknown entity kind")
		return
	}

	query := r.URL.Query()
	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	filters := models.Filters{}
	for key, values := range query {
		switch key {
		case "status", "offset", "limit":
			continue
		}
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}

	// A repeated status parameter switches to the flat "see more" page.
	if requested := query["status"]; len(requested) > 0 {
		states := make([]models.State, len(requested))
		for i, s := range requested {
			states[i] = models.State(s)
		}
		page, err := h.aggregator.DrillDown(ctx, kind, states, actor, filters, offset, limit)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": page.States,
			"total":  page.Total,
			"items":  entitiesResponse(page.Items),
		})
		return
	}

	buckets, err := h.aggregator.Summarize(ctx, kind, actor, filters, offset, limit)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	cards := make([]map[string]any, 0, len(buckets))
	for _, b := range buckets {
		cards = append(cards, map[string]any{
			"status": b.State,
			"total":  b.Total,
			"items":  entitiesResponse(b.Items),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": cards})
}
