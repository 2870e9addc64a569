package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealflow/internal/auditlog"
	"mealflow/internal/correction"
	"mealflow/internal/dashboard"
	"mealflow/internal/platform/middleware"
	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/registry"
	"mealflow/internal/workflow/service"
	"mealflow/internal/workflow/store"
	"mealflow/pkg/testutil"
)

const testSigningKey = "handler-test-signing-key"

type passthroughRunner struct{}

func (passthroughRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.Default()
	reg := registry.Default()

	entities := store.NewInMemoryStore()
	auditLog, err := auditlog.New(auditlog.NewInMemoryStore())
	require.NoError(t, err)
	executor, err := service.NewExecutor(reg, entities, auditLog, passthroughRunner{}, logger)
	require.NoError(t, err)
	aggregator, err := dashboard.NewAggregator(dashboard.DefaultVisibility(), entities, logger)
	require.NoError(t, err)
	corrections := correction.NewInMemoryStore()
	correctionSvc, err := correction.New(executor, reg, passthroughRunner{}, corrections, corrections, logger)
	require.NoError(t, err)

	handler := New(executor, aggregator, correctionSvc, auditLog, reg,
		middleware.NewPrincipalResolver(testSigningKey), logger)
	router := chi.NewRouter()
	handler.Register(router)
	return router
}

func token(t *testing.T, role models.Role, org string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":         uuid.NewString(),
		"role":        string(role),
		"org_binding": org,
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router chi.Router, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.WithBearer(testutil.NewJSONRequest(t, method, path, body), bearer)
	return testutil.DoRequest(router, req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	return testutil.UnmarshalResponse(t, rec)
}

func TestHandler_RequiresToken(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/v1/entities/TECH_SHEET", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RejectsForeignToken(t *testing.T) {
	router := newTestRouter(t)
	claims := jwt.MapClaims{"sub": uuid.NewString(), "role": "SUPPLIER"}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-key"))
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/v1/entities/TECH_SHEET", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CreateAndTransition(t *testing.T) {
	router := newTestRouter(t)
	supplier := token(t, models.RoleSupplier, "org-north")

	rec := doJSON(t, router, http.MethodPost, "/v1/entities/TECH_SHEET", supplier, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	assert.Equal(t, "DRAFT", created["status"])
	assert.Equal(t, "org-north", created["org_binding"])
	id := created["uuid"].(string)

	rec = doJSON(t, router, http.MethodPost,
		"/v1/entities/TECH_SHEET/"+id+"/transitions/submit_for_analysis", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SENT_FOR_ANALYSIS", decode(t, rec)["status"])

	// The history endpoint shows the movement with its resolved name.
	rec = doJSON(t, router, http.MethodGet,
		"/v1/entities/TECH_SHEET/"+id+"/history", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode(t, rec)["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "TECH_SHEET.submit_for_analysis", entry["transition"])
	assert.Equal(t, "SUPPLIER", entry["actor_role"])
}

func TestHandler_UnknownKind(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/v1/entities/MYSTERY", token(t, models.RoleSupplier, ""), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_TransitionErrorMapping(t *testing.T) {
	router := newTestRouter(t)
	supplier := token(t, models.RoleSupplier, "")
	reviewer := token(t, models.RoleProductManager, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/entities/TECH_SHEET", supplier, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["uuid"].(string)
	path := "/v1/entities/TECH_SHEET/" + id + "/transitions/"

	// Wrong source state: the sheet is still a draft.
	rec = doJSON(t, router, http.MethodPost, path+"approve", reviewer, nil)
	testutil.AssertStatus(t, rec, http.StatusConflict)
	testutil.AssertErrorCode(t, rec, "INVALID_TRANSITION")

	// Wrong role.
	rec = doJSON(t, router, http.MethodPost, path+"submit_for_analysis", reviewer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Missing required justification.
	rec = doJSON(t, router, http.MethodPost, path+"submit_for_analysis", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, path+"request_correction", reviewer,
		map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unknown entity.
	rec = doJSON(t, router, http.MethodPost,
		"/v1/entities/TECH_SHEET/"+uuid.NewString()+"/transitions/approve", reviewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CorrectionCycle(t *testing.T) {
	router := newTestRouter(t)
	supplier := token(t, models.RoleSupplier, "")
	reviewer := token(t, models.RoleProductManager, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/entities/TECH_SHEET", supplier, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["uuid"].(string)
	base := "/v1/entities/TECH_SHEET/" + id

	rec = doJSON(t, router, http.MethodPost, base+"/transitions/submit_for_analysis", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/correction", reviewer, map[string]any{
		"justification":  "net weight does not match the sample",
		"fields_ok":      []string{"product_name"},
		"fields_for_fix": []string{"net_weight"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CORRECTION_REQUESTED", decode(t, rec)["status"])

	rec = doJSON(t, router, http.MethodGet, base+"/correction", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, float64(1), status["round"])
	assert.Equal(t, []any{"net_weight"}, status["flagged_fields"])

	// Editing a field that was not flagged is rejected.
	rec = doJSON(t, router, http.MethodPost, base+"/resubmit", supplier, map[string]any{
		"values": map[string]string{"product_name": "other rice"},
	})
	testutil.AssertStatus(t, rec, http.StatusUnprocessableEntity)
	testutil.AssertErrorCode(t, rec, "FROZEN_FIELD_EDITED")

	rec = doJSON(t, router, http.MethodPost, base+"/resubmit", supplier, map[string]any{
		"values": map[string]string{"net_weight": "950g"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SENT_FOR_ANALYSIS", decode(t, rec)["status"])
}

func TestHandler_SoftDelete(t *testing.T) {
	router := newTestRouter(t)
	supplier := token(t, models.RoleSupplier, "")

	rec := doJSON(t, router, http.MethodPost, "/v1/entities/TECH_SHEET", supplier, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["uuid"].(string)

	rec = doJSON(t, router, http.MethodDelete, "/v1/entities/TECH_SHEET/"+id, supplier, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/v1/entities/TECH_SHEET/"+id+"/history", supplier, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Dashboard(t *testing.T) {
	router := newTestRouter(t)
	viewer := token(t, models.RoleViewer, "")

	rec := doJSON(t, router, http.MethodGet, "/v1/dashboard/TECH_SHEET", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode(t, rec)["results"].([]any)
	assert.Len(t, results, 4)

	rec = doJSON(t, router, http.MethodGet,
		"/v1/dashboard/TECH_SHEET?status=SENT_FOR_ANALYSIS&status=APPROVED", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Equal(t, float64(0), page["total"])

	rec = doJSON(t, router, http.MethodGet, "/v1/dashboard/TECH_SHEET",
		token(t, "INTERN", ""), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
