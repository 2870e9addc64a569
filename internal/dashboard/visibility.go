// Package dashboard projects workflow entities into role-scoped operational
// queues: one card per visible state, ordered by last movement.
package dashboard

import (
	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/registry"
)

// VisibilityMap declares, per entity kind, which states each role's queue
// shows and in what order. An unconfigured role fails loudly: an empty card
// list must never be mistaken for an empty queue.
type VisibilityMap struct {
	states map[models.EntityKind]map[models.Role][]models.State
	scoped map[models.Role]bool
}

// NewVisibilityMap builds an empty map. Most callers want DefaultVisibility.
func NewVisibilityMap() *VisibilityMap {
	return &VisibilityMap{
		states: make(map[models.EntityKind]map[models.Role][]models.State),
		scoped: make(map[models.Role]bool),
	}
}

// Set configures the ordered visible states of one role for one kind.
func (v *VisibilityMap) Set(kind models.EntityKind, role models.Role, states []models.State) {
	if v.states[kind] == nil {
		v.states[kind] = make(map[models.Role][]models.State)
	}
	v.states[kind][role] = states
}

// SetOrgScoped marks a role as ownership-scoped: its queues only show records
// of the actor's own organization.
func (v *VisibilityMap) SetOrgScoped(role models.Role) {
	v.scoped[role] = true
}

// OrgScoped reports whether the role only sees its own organization's records.
func (v *VisibilityMap) OrgScoped(role models.Role) bool {
	return v.scoped[role]
}

// StatesVisibleTo returns the ordered visible states of a role for a kind.
// Fails with UnknownRole when the role is not configured for the kind.
func (v *VisibilityMap) StatesVisibleTo(kind models.EntityKind, role models.Role) ([]models.State, error) {
	states, ok := v.states[kind][role]
	if !ok {
		return nil, models.NewTransitionError(
			models.ErrUnknownRole, models.Ref{Kind: kind}, "", "",
			"role "+string(role)+" has no dashboard configuration for kind "+string(kind))
	}
	return states, nil
}

// DefaultVisibility wires the production queues of all six kinds.
func DefaultVisibility() *VisibilityMap {
	v := NewVisibilityMap()
	v.SetOrgScoped(models.RoleSupplier)
	v.SetOrgScoped(models.RoleSchoolStaff)

	v.Set(models.KindDeliverySchedule, models.RoleLogisticsCoordinator, []models.State{
		registry.ScheduleDraft,
		registry.ScheduleSentToSupplier,
		registry.ScheduleSignedSupplier,
		registry.ScheduleSignedLogistics,
		registry.ScheduleSignedAuthority,
		registry.ScheduleChangeRequested,
		registry.ScheduleAuthorityAmended,
	})
	v.Set(models.KindDeliverySchedule, models.RoleSupplier, []models.State{
		registry.ScheduleSentToSupplier,
		registry.ScheduleChangeRequested,
		registry.ScheduleSignedAuthority,
	})
	v.Set(models.KindDeliverySchedule, models.RoleSupplyDivision, []models.State{
		registry.ScheduleSignedSupplier,
		registry.ScheduleSignedLogistics,
		registry.ScheduleSignedAuthority,
	})
	v.Set(models.KindDeliverySchedule, models.RoleAuthorityCabinet, []models.State{
		registry.ScheduleSignedLogistics,
		registry.ScheduleSignedAuthority,
	})

	reviewQueue := []models.State{
		registry.SheetSentForAnalysis,
		registry.SheetApproved,
		registry.SheetCorrectionRequested,
	}
	v.Set(models.KindTechSheet, models.RoleProductManager, reviewQueue)
	v.Set(models.KindTechSheet, models.RoleSupplier, []models.State{
		registry.SheetCorrectionRequested,
		registry.SheetSentForAnalysis,
		registry.SheetApproved,
	})

	layoutQueue := []models.State{
		registry.LayoutSentForAnalysis,
		registry.LayoutApproved,
		registry.LayoutCorrectionRequested,
	}
	v.Set(models.KindPackagingLayout, models.RoleLogisticsCoordinator, layoutQueue)
	v.Set(models.KindPackagingLayout, models.RoleQualityDivision, layoutQueue)
	v.Set(models.KindPackagingLayout, models.RoleProductManager, layoutQueue)
	v.Set(models.KindPackagingLayout, models.RoleSupplier, []models.State{
		registry.LayoutCorrectionRequested,
		registry.LayoutSentForAnalysis,
		registry.LayoutApproved,
	})

	receivingQueue := []models.State{
		registry.ReceivingSentForAnalysis,
		registry.ReceivingCorrectionRequested,
		registry.ReceivingApproved,
	}
	v.Set(models.KindReceivingDocument, models.RoleQualityDivision, receivingQueue)
	v.Set(models.KindReceivingDocument, models.RoleSupplier, []models.State{
		registry.ReceivingCorrectionRequested,
		registry.ReceivingSentForAnalysis,
		registry.ReceivingApproved,
	})

	v.Set(models.KindProductHomologation, models.RoleProductManager, []models.State{
		registry.HomologAwaitingAnalysis,
		registry.HomologPendingApproval,
		registry.HomologCorrectionRequired,
	})
	v.Set(models.KindProductHomologation, models.RoleAuthorityCabinet, []models.State{
		registry.HomologPendingApproval,
		registry.HomologHomologated,
		registry.HomologNotHomologated,
	})
	v.Set(models.KindProductHomologation, models.RoleSupplier, []models.State{
		registry.HomologCorrectionRequired,
		registry.HomologAwaitingAnalysis,
		registry.HomologPendingApproval,
		registry.HomologHomologated,
		registry.HomologNotHomologated,
	})

	v.Set(models.KindMeasurementReport, models.RoleSchoolStaff, []models.State{
		registry.MeasurementOpenForEntry,
		registry.MeasurementCorrectionRequested,
		registry.MeasurementSentForReview,
		registry.MeasurementResubmitted,
		registry.MeasurementApproved,
	})
	v.Set(models.KindMeasurementReport, models.RoleRegionalDirector, []models.State{
		registry.MeasurementSentForReview,
		registry.MeasurementResubmitted,
		registry.MeasurementCorrectionRequested,
		registry.MeasurementApproved,
	})
	v.Set(models.KindMeasurementReport, models.RoleAuthorityCabinet, []models.State{
		registry.MeasurementSentForReview,
		registry.MeasurementResubmitted,
		registry.MeasurementApproved,
	})

	// The read-only profile sees every queue of every kind.
	for kind, machine := range map[models.EntityKind][]models.State{
		models.KindDeliverySchedule: {
			registry.ScheduleDraft, registry.ScheduleSentToSupplier,
			registry.ScheduleSignedSupplier, registry.ScheduleSignedLogistics,
			registry.ScheduleSignedAuthority, registry.ScheduleChangeRequested,
			registry.ScheduleAuthorityAmended,
		},
		models.KindTechSheet: {
			registry.SheetDraft, registry.SheetSentForAnalysis,
			registry.SheetApproved, registry.SheetCorrectionRequested,
		},
		models.KindPackagingLayout: {
			registry.LayoutCreated, registry.LayoutSentForAnalysis,
			registry.LayoutApproved, registry.LayoutCorrectionRequested,
		},
		models.KindReceivingDocument: {
			registry.ReceivingCreated, registry.ReceivingSentForAnalysis,
			registry.ReceivingCorrectionRequested, registry.ReceivingApproved,
		},
		models.KindProductHomologation: {
			registry.HomologAwaitingAnalysis, registry.HomologPendingApproval,
			registry.HomologHomologated, registry.HomologNotHomologated,
			registry.HomologCorrectionRequired,
		},
		models.KindMeasurementReport: {
			registry.MeasurementOpenForEntry, registry.MeasurementSentForReview,
			registry.MeasurementCorrectionRequested, registry.MeasurementResubmitted,
			registry.MeasurementApproved,
		},
	} {
		v.Set(kind, models.RoleViewer, machine)
	}
	return v
}
