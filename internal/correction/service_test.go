package correction

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealflow/internal/auditlog"
	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/registry"
	"mealflow/internal/workflow/service"
	"mealflow/internal/workflow/store"
	"mealflow/pkg/sentinel"
)

type passthroughRunner struct{}

func (passthroughRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type cycleFixture struct {
	service  *Service
	executor *service.Executor
	records  *InMemoryStore
	audit    *auditlog.InMemoryStore
}

func newCycleFixture(t *testing.T) *cycleFixture {
	t.Helper()
	f := &cycleFixture{
		records: NewInMemoryStore(),
		audit:   auditlog.NewInMemoryStore(),
	}
	log, err := auditlog.New(f.audit)
	require.NoError(t, err)
	reg := registry.Default()
	f.executor, err = service.NewExecutor(reg, store.NewInMemoryStore(), log, passthroughRunner{}, slog.Default())
	require.NoError(t, err)
	f.service, err = New(f.executor, reg, passthroughRunner{}, f.records, f.records, slog.Default())
	require.NoError(t, err)
	return f
}

// sheetInAnalysis creates a technical sheet and submits it for review.
func (f *cycleFixture) sheetInAnalysis(t *testing.T) models.Ref {
	t.Helper()
	ctx := context.Background()
	entity, err := f.executor.Create(ctx, models.Entity{UUID: uuid.New(), Kind: models.KindTechSheet})
	require.NoError(t, err)
	ref := models.Ref{Kind: models.KindTechSheet, UUID: entity.UUID}
	f.records.SetField(ref, "product_name", "whole grain rice")
	f.records.SetField(ref, "net_weight", "1kg")
	_, err = f.executor.Execute(ctx, ref, "submit_for_analysis", supplier(), models.Payload{})
	require.NoError(t, err)
	return ref
}

// sheetInCorrection additionally runs a correction request flagging net_weight.
func (f *cycleFixture) sheetInCorrection(t *testing.T) models.Ref {
	t.Helper()
	ref := f.sheetInAnalysis(t)
	_, err := f.service.RequestCorrection(context.Background(), ref, reviewer(),
		"label weight does not match the sample",
		[]string{"product_name"}, []string{"net_weight"})
	require.NoError(t, err)
	return ref
}

func supplier() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleSupplier}
}

func reviewer() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleProductManager}
}

func TestService_RequestCorrection(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInAnalysis(t)
	ctx := context.Background()

	entity, err := f.service.RequestCorrection(ctx, ref, reviewer(),
		"label weight does not match the sample",
		[]string{"product_name"}, []string{"net_weight"})
	require.NoError(t, err)
	assert.Equal(t, registry.SheetCorrectionRequested, entity.Status)

	flags, err := f.records.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"net_weight"}, flags.FlaggedFields)
	assert.Equal(t, 1, flags.Round)

	answers, err := f.records.Answers(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, VerdictApproved, answers["product_name"])
	assert.Equal(t, VerdictNeedsFix, answers["net_weight"])

	// The movement itself went through the executor and was audited.
	latest, err := f.audit.MostRecent(ctx, ref.Kind, ref.UUID)
	require.NoError(t, err)
	assert.Equal(t, "TECH_SHEET.request_correction", registry.Default().TransitionName(latest.EventCode))
	assert.Equal(t, "label weight does not match the sample", latest.Justification)
}

func TestService_RequestCorrection_NothingFlagged(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInAnalysis(t)

	_, err := f.service.RequestCorrection(context.Background(), ref, reviewer(),
		"looks fine", []string{"product_name", "net_weight"}, nil)
	assert.Equal(t, models.ErrValidationFailed, models.ErrorKindOf(err))
}

func TestService_RequestCorrection_JustificationRequired(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInAnalysis(t)
	ctx := context.Background()

	_, err := f.service.RequestCorrection(ctx, ref, reviewer(), "", nil, []string{"net_weight"})
	assert.Equal(t, models.ErrValidationFailed, models.ErrorKindOf(err))

	// The rejected request left no open correction behind.
	_, err = f.records.Get(ctx, ref)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestService_RequestCorrection_WrongRole(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInAnalysis(t)

	_, err := f.service.RequestCorrection(context.Background(), ref, supplier(),
		"trying to flag my own sheet", nil, []string{"net_weight"})
	assert.Equal(t, models.ErrUnauthorized, models.ErrorKindOf(err))
}

func TestService_RequestCorrection_KindWithoutCycle(t *testing.T) {
	f := newCycleFixture(t)
	ref := models.Ref{Kind: models.KindDeliverySchedule, UUID: uuid.New()}

	_, err := f.service.RequestCorrection(context.Background(), ref, reviewer(),
		"x", nil, []string{"anything"})
	assert.ErrorContains(t, err, "no correction cycle")
}

func TestService_Resubmit(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)
	ctx := context.Background()

	entity, err := f.service.Resubmit(ctx, ref, supplier(), map[string]string{"net_weight": "950g"})
	require.NoError(t, err)
	assert.Equal(t, registry.SheetSentForAnalysis, entity.Status)

	// Corrected value landed on the canonical record.
	assert.Equal(t, "950g", f.records.Field(ref, "net_weight"))
	assert.Equal(t, "whole grain rice", f.records.Field(ref, "product_name"))

	// The reviewer's answer for the corrected part is gone, the untouched
	// approval survives.
	answers, err := f.records.Answers(ctx, ref)
	require.NoError(t, err)
	_, reviewed := answers["net_weight"]
	assert.False(t, reviewed)
	assert.Equal(t, VerdictApproved, answers["product_name"])

	// No correction is open anymore.
	_, err = f.records.Get(ctx, ref)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestService_Resubmit_MissingFlaggedField(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)
	ctx := context.Background()

	_, err := f.service.Resubmit(ctx, ref, supplier(), map[string]string{})
	assert.Equal(t, models.ErrIncompleteCorrection, models.ErrorKindOf(err))

	// Nothing moved and nothing merged.
	entity, err := f.executor.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, registry.SheetCorrectionRequested, entity.Status)
	assert.Equal(t, "1kg", f.records.Field(ref, "net_weight"))
}

func TestService_Resubmit_FrozenFieldEdited(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)

	_, err := f.service.Resubmit(context.Background(), ref, supplier(), map[string]string{
		"net_weight":   "950g",
		"product_name": "parboiled rice",
	})
	assert.Equal(t, models.ErrFrozenFieldEdited, models.ErrorKindOf(err))
	assert.Equal(t, "whole grain rice", f.records.Field(ref, "product_name"))
}

func TestService_Resubmit_WrongRoleLeavesRecordFrozen(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)
	ctx := context.Background()

	_, err := f.service.Resubmit(ctx, ref, reviewer(), map[string]string{"net_weight": "950g"})
	assert.Equal(t, models.ErrUnauthorized, models.ErrorKindOf(err))

	// The rejected attempt merged nothing and the correction stays open for
	// the supplier.
	assert.Equal(t, "1kg", f.records.Field(ref, "net_weight"))
	flags, err := f.records.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"net_weight"}, flags.FlaggedFields)

	answers, err := f.records.Answers(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, VerdictNeedsFix, answers["net_weight"])

	_, err = f.service.Resubmit(ctx, ref, supplier(), map[string]string{"net_weight": "950g"})
	require.NoError(t, err)
	assert.Equal(t, "950g", f.records.Field(ref, "net_weight"))
}

func TestService_Resubmit_NoOpenCorrection(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInAnalysis(t)

	_, err := f.service.Resubmit(context.Background(), ref, supplier(),
		map[string]string{"net_weight": "950g"})
	assert.Equal(t, models.ErrWrongPriorState, models.ErrorKindOf(err))
}

func TestService_Resubmit_TwiceIsRejected(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)
	ctx := context.Background()

	_, err := f.service.Resubmit(ctx, ref, supplier(), map[string]string{"net_weight": "950g"})
	require.NoError(t, err)

	_, err = f.service.Resubmit(ctx, ref, supplier(), map[string]string{"net_weight": "900g"})
	assert.Equal(t, models.ErrWrongPriorState, models.ErrorKindOf(err))
}

func TestService_RepeatedCycleIncrementsRound(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)
	ctx := context.Background()

	_, err := f.service.Resubmit(ctx, ref, supplier(), map[string]string{"net_weight": "950g"})
	require.NoError(t, err)

	_, err = f.service.RequestCorrection(ctx, ref, reviewer(),
		"weight still off", nil, []string{"net_weight"})
	require.NoError(t, err)

	status, err := f.service.Status(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Round)
	assert.False(t, status.FirstAnalysis)
	assert.Equal(t, []string{"net_weight"}, status.FlaggedFields)
	assert.False(t, status.FullyApproved)
}

func TestService_Status_FirstAnalysis(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInAnalysis(t)

	status, err := f.service.Status(context.Background(), ref)
	require.NoError(t, err)
	assert.Zero(t, status.Round)
	assert.True(t, status.FirstAnalysis)
	assert.Empty(t, status.FlaggedFields)
	assert.False(t, status.FullyApproved)
}

func TestService_Status_FullyApprovedAfterResubmission(t *testing.T) {
	f := newCycleFixture(t)
	ref := f.sheetInCorrection(t)
	ctx := context.Background()

	_, err := f.service.Resubmit(ctx, ref, supplier(), map[string]string{"net_weight": "950g"})
	require.NoError(t, err)

	// Only the earlier approval remains recorded, so the aggregate reads
	// fully approved until the reviewer answers the corrected part again.
	status, err := f.service.Status(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Round)
	assert.True(t, status.FullyApproved)
	assert.Empty(t, status.FlaggedFields)
}

func TestReviewFlags_Flagged(t *testing.T) {
	flags := ReviewFlags{FlaggedFields: []string{"net_weight"}}
	assert.True(t, flags.Flagged("net_weight"))
	assert.False(t, flags.Flagged("product_name"))
}
