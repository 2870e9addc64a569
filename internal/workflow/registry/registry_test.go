package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealflow/internal/workflow/models"
)

func validMachine() *Machine {
	return &Machine{
		Kind:    models.EntityKind("AGREEMENT"),
		Initial: models.State("DRAFT"),
		States: []models.StateDefinition{
			{Code: "DRAFT"},
			{Code: "AWAITING_SIGNATURE"},
			{Code: "SIGNED", Terminal: true},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:         "send_to_counterparty",
				Sources:      []models.State{"DRAFT"},
				Target:       "AWAITING_SIGNATURE",
				AllowedRoles: []models.Role{"ISSUER"},
			},
			{
				Name:         "counterparty_signs",
				Sources:      []models.State{"AWAITING_SIGNATURE"},
				Target:       "SIGNED",
				AllowedRoles: []models.Role{"COUNTERPARTY"},
			},
		},
		DeletableFrom: []models.State{"DRAFT"},
	}
}

func validCodes() map[string]int {
	return map[string]int{
		"send_to_counterparty": 901,
		"counterparty_signs":   902,
	}
}

func TestMachine_Validate(t *testing.T) {
	require.NoError(t, validMachine().Validate())
}

func TestMachine_Validate_UndeclaredInitial(t *testing.T) {
	m := validMachine()
	m.Initial = "NOWHERE"
	assert.ErrorContains(t, m.Validate(), "initial state")
}

func TestMachine_Validate_DuplicateTransition(t *testing.T) {
	m := validMachine()
	m.Transitions = append(m.Transitions, m.Transitions[0])
	assert.ErrorContains(t, m.Validate(), "duplicate transition")
}

func TestMachine_Validate_TerminalStateWithOutgoingEdge(t *testing.T) {
	m := validMachine()
	m.Transitions = append(m.Transitions, models.TransitionDefinition{
		Name:         "unsign",
		Sources:      []models.State{"SIGNED"},
		Target:       "DRAFT",
		AllowedRoles: []models.Role{"ISSUER"},
	})
	assert.ErrorContains(t, m.Validate(), "terminal state")
}

func TestMachine_Validate_UndeclaredTarget(t *testing.T) {
	m := validMachine()
	m.Transitions[1].Target = "ARCHIVED"
	assert.ErrorContains(t, m.Validate(), "target")
}

func TestMachine_Validate_NoRoles(t *testing.T) {
	m := validMachine()
	m.Transitions[0].AllowedRoles = nil
	assert.ErrorContains(t, m.Validate(), "no allowed roles")
}

func TestMachine_Validate_CorrectionShape(t *testing.T) {
	m := validMachine()
	m.Correction = CorrectionShape{
		RequestTransition:  "request_fix",
		ResubmitTransition: "counterparty_signs",
		CorrectionState:    "DRAFT",
	}
	assert.ErrorContains(t, m.Validate(), "correction request transition")
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(validMachine(), validCodes()))

	m, err := r.Machine("AGREEMENT")
	require.NoError(t, err)
	assert.Equal(t, models.State("DRAFT"), m.Initial)

	code, err := r.EventCode("AGREEMENT", "counterparty_signs")
	require.NoError(t, err)
	assert.Equal(t, 902, code)
	assert.Equal(t, "AGREEMENT.counterparty_signs", r.TransitionName(902))
}

func TestRegistry_Register_DuplicateKind(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(validMachine(), validCodes()))
	assert.ErrorContains(t, r.Register(validMachine(), map[string]int{
		"send_to_counterparty": 911,
		"counterparty_signs":   912,
	}), "already registered")
}

func TestRegistry_Register_CodeTableMismatch(t *testing.T) {
	r := New()
	codes := validCodes()
	delete(codes, "counterparty_signs")
	assert.ErrorContains(t, r.Register(validMachine(), codes), "code table")
}

func TestRegistry_Register_ReusedCode(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(validMachine(), validCodes()))

	other := validMachine()
	other.Kind = "CONTRACT"
	err := r.Register(other, map[string]int{
		"send_to_counterparty": 901, // taken by AGREEMENT
		"counterparty_signs":   912,
	})
	assert.ErrorContains(t, err, "already assigned")
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := New()
	_, err := r.Machine("AGREEMENT")
	assert.ErrorContains(t, err, "no machine")
	_, err = r.EventCode("AGREEMENT", "counterparty_signs")
	assert.ErrorContains(t, err, "no machine")
}

func TestRegistry_TransitionName_UnknownCode(t *testing.T) {
	assert.Empty(t, New().TransitionName(999))
}

func TestDefault_AllKindsRegistered(t *testing.T) {
	r := Default()
	kinds := []models.EntityKind{
		models.KindDeliverySchedule,
		models.KindTechSheet,
		models.KindPackagingLayout,
		models.KindReceivingDocument,
		models.KindProductHomologation,
		models.KindMeasurementReport,
	}
	for _, kind := range kinds {
		m, err := r.Machine(kind)
		require.NoError(t, err, kind)
		require.NoError(t, m.Validate(), kind)
		for _, tr := range m.Transitions {
			code, err := r.EventCode(kind, tr.Name)
			require.NoError(t, err)
			assert.Equal(t, string(kind)+"."+tr.Name, r.TransitionName(code))
		}
	}
}

func TestDefault_CorrectionShapes(t *testing.T) {
	r := Default()
	for _, kind := range []models.EntityKind{
		models.KindTechSheet,
		models.KindPackagingLayout,
		models.KindReceivingDocument,
		models.KindProductHomologation,
		models.KindMeasurementReport,
	} {
		m, err := r.Machine(kind)
		require.NoError(t, err)
		assert.NotEmpty(t, m.Correction.RequestTransition, kind)
		assert.NotEmpty(t, m.Correction.ResubmitTransition, kind)
		request, ok := m.Transition(m.Correction.RequestTransition)
		require.True(t, ok, kind)
		assert.Equal(t, m.Correction.CorrectionState, request.Target, kind)
	}
}

func TestDefault_SignatureChainHasNoCorrection(t *testing.T) {
	r := Default()
	m, err := r.Machine(models.KindDeliverySchedule)
	require.NoError(t, err)
	assert.Empty(t, m.Correction.RequestTransition)
}
