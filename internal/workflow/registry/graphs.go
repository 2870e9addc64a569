package registry

import (
	"mealflow/internal/workflow/models"
)

// Default builds the registry with the production graphs of all six entity
// kinds. Panics on a malformed table; the graphs are static and covered by
// tests, so a failure here is a programming error caught at startup.
func Default() *Registry {
	r := New()
	for _, reg := range []struct {
		machine *Machine
		codes   map[string]int
	}{
		{deliverySchedule(), deliveryScheduleCodes},
		{techSheet(), techSheetCodes},
		{packagingLayout(), packagingLayoutCodes},
		{receivingDocument(), receivingDocumentCodes},
		{productHomologation(), productHomologationCodes},
		{measurementReport(), measurementReportCodes},
	} {
		if err := r.Register(reg.machine, reg.codes); err != nil {
			panic(err)
		}
	}
	return r
}

// Delivery schedule: four-party signature chain. The supplier, the supply
// division and the authority each countersign in order; after full signature
// either side can open an amendment that rejoins the signed state.
const (
	ScheduleDraft            = models.State("DRAFT")
	ScheduleSentToSupplier   = models.State("SIGNED_SENT_TO_SUPPLIER")
	ScheduleSignedSupplier   = models.State("SIGNED_SUPPLIER")
	ScheduleSignedLogistics  = models.State("SIGNED_LOGISTICS")
	ScheduleSignedAuthority  = models.State("SIGNED_AUTHORITY")
	ScheduleChangeRequested  = models.State("CHANGE_REQUESTED")
	ScheduleAuthorityAmended = models.State("AUTHORITY_AMENDMENT")
)

var deliveryScheduleCodes = map[string]int{
	"submit_to_supplier":       101,
	"supplier_signs":           102,
	"supply_division_signs":    103,
	"authority_signs":          104,
	"supplier_requests_change": 105,
	"authority_amends":         106,
	"finalize_change":          107,
}

func deliverySchedule() *Machine {
	return &Machine{
		Kind:    models.KindDeliverySchedule,
		Initial: ScheduleDraft,
		States: []models.StateDefinition{
			{Code: ScheduleDraft},
			{Code: ScheduleSentToSupplier},
			{Code: ScheduleSignedSupplier},
			{Code: ScheduleSignedLogistics},
			{Code: ScheduleSignedAuthority},
			{Code: ScheduleChangeRequested},
			{Code: ScheduleAuthorityAmended},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:         "submit_to_supplier",
				Sources:      []models.State{ScheduleDraft},
				Target:       ScheduleSentToSupplier,
				AllowedRoles: []models.Role{models.RoleLogisticsCoordinator},
			},
			{
				Name:         "supplier_signs",
				Sources:      []models.State{ScheduleSentToSupplier},
				Target:       ScheduleSignedSupplier,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
			{
				Name:         "supply_division_signs",
				Sources:      []models.State{ScheduleSignedSupplier},
				Target:       ScheduleSignedLogistics,
				AllowedRoles: []models.Role{models.RoleSupplyDivision},
			},
			{
				Name:         "authority_signs",
				Sources:      []models.State{ScheduleSignedLogistics},
				Target:       ScheduleSignedAuthority,
				AllowedRoles: []models.Role{models.RoleAuthorityCabinet},
			},
			{
				Name:                 "supplier_requests_change",
				Sources:              []models.State{ScheduleSignedAuthority},
				Target:               ScheduleChangeRequested,
				AllowedRoles:         []models.Role{models.RoleSupplier},
				RequireJustification: true,
			},
			{
				Name:         "authority_amends",
				Sources:      []models.State{ScheduleSignedAuthority},
				Target:       ScheduleAuthorityAmended,
				AllowedRoles: []models.Role{models.RoleLogisticsCoordinator},
			},
			{
				Name:         "finalize_change",
				Sources:      []models.State{ScheduleChangeRequested, ScheduleAuthorityAmended},
				Target:       ScheduleSignedAuthority,
				AllowedRoles: []models.Role{models.RoleLogisticsCoordinator},
			},
		},
		DeletableFrom: []models.State{ScheduleDraft},
	}
}

// Technical sheet: supplier-authored product description reviewed by product
// management, with a correction cycle and post-approval updates.
const (
	SheetDraft               = models.State("DRAFT")
	SheetSentForAnalysis     = models.State("SENT_FOR_ANALYSIS")
	SheetApproved            = models.State("APPROVED")
	SheetCorrectionRequested = models.State("CORRECTION_REQUESTED")
)

var techSheetCodes = map[string]int{
	"submit_for_analysis": 201,
	"approve":             202,
	"request_correction":  203,
	"resubmit_correction": 204,
	"supplier_updates":    205,
}

func techSheet() *Machine {
	return &Machine{
		Kind:    models.KindTechSheet,
		Initial: SheetDraft,
		States: []models.StateDefinition{
			{Code: SheetDraft},
			{Code: SheetSentForAnalysis},
			{Code: SheetApproved},
			{Code: SheetCorrectionRequested},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:         "submit_for_analysis",
				Sources:      []models.State{SheetDraft},
				Target:       SheetSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
			{
				Name:         "approve",
				Sources:      []models.State{SheetSentForAnalysis},
				Target:       SheetApproved,
				AllowedRoles: []models.Role{models.RoleProductManager},
			},
			{
				Name:                 "request_correction",
				Sources:              []models.State{SheetSentForAnalysis},
				Target:               SheetCorrectionRequested,
				AllowedRoles:         []models.Role{models.RoleProductManager},
				RequireJustification: true,
			},
			{
				Name:         "resubmit_correction",
				Sources:      []models.State{SheetCorrectionRequested},
				Target:       SheetSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
			{
				Name:         "supplier_updates",
				Sources:      []models.State{SheetApproved},
				Target:       SheetSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
		},
		DeletableFrom: []models.State{SheetDraft},
		Correction: CorrectionShape{
			RequestTransition:  "request_correction",
			ResubmitTransition: "resubmit_correction",
			CorrectionState:    SheetCorrectionRequested,
		},
	}
}

// Packaging layout: supplier uploads layout images per packaging type;
// logistics or quality reviews them. A correction can reopen even an approved
// layout.
const (
	LayoutCreated             = models.State("LAYOUT_CREATED")
	LayoutSentForAnalysis     = models.State("SENT_FOR_ANALYSIS")
	LayoutApproved            = models.State("APPROVED")
	LayoutCorrectionRequested = models.State("CORRECTION_REQUESTED")
)

var packagingLayoutCodes = map[string]int{
	"submit_for_analysis": 301,
	"approve":             302,
	"request_correction":  303,
	"resubmit_correction": 304,
	"supplier_updates":    305,
}

func packagingLayout() *Machine {
	reviewers := []models.Role{models.RoleLogisticsCoordinator, models.RoleQualityDivision}
	return &Machine{
		Kind:    models.KindPackagingLayout,
		Initial: LayoutCreated,
		States: []models.StateDefinition{
			{Code: LayoutCreated},
			{Code: LayoutSentForAnalysis},
			{Code: LayoutApproved},
			{Code: LayoutCorrectionRequested},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:               "submit_for_analysis",
				Sources:            []models.State{LayoutCreated},
				Target:             LayoutSentForAnalysis,
				AllowedRoles:       []models.Role{models.RoleSupplier},
				RequireAttachments: true,
			},
			{
				Name:         "approve",
				Sources:      []models.State{LayoutSentForAnalysis},
				Target:       LayoutApproved,
				AllowedRoles: reviewers,
			},
			{
				Name:                 "request_correction",
				Sources:              []models.State{LayoutSentForAnalysis, LayoutApproved},
				Target:               LayoutCorrectionRequested,
				AllowedRoles:         reviewers,
				RequireJustification: true,
			},
			{
				Name:         "resubmit_correction",
				Sources:      []models.State{LayoutCorrectionRequested},
				Target:       LayoutSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
			{
				Name:         "supplier_updates",
				Sources:      []models.State{LayoutApproved},
				Target:       LayoutSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
		},
		DeletableFrom: []models.State{LayoutCreated},
		Correction: CorrectionShape{
			RequestTransition:  "request_correction",
			ResubmitTransition: "resubmit_correction",
			CorrectionState:    LayoutCorrectionRequested,
		},
	}
}

// Receiving document: quality reviews the delivery paperwork the supplier
// attaches after each shipment.
const (
	ReceivingCreated             = models.State("DOCUMENT_CREATED")
	ReceivingSentForAnalysis     = models.State("SENT_FOR_ANALYSIS")
	ReceivingCorrectionRequested = models.State("CORRECTION_REQUESTED")
	ReceivingApproved            = models.State("APPROVED")
)

var receivingDocumentCodes = map[string]int{
	"submit_for_analysis": 401,
	"request_correction":  402,
	"approve":             403,
	"resubmit_correction": 404,
	"supplier_updates":    405,
}

func receivingDocument() *Machine {
	return &Machine{
		Kind:    models.KindReceivingDocument,
		Initial: ReceivingCreated,
		States: []models.StateDefinition{
			{Code: ReceivingCreated},
			{Code: ReceivingSentForAnalysis},
			{Code: ReceivingCorrectionRequested},
			{Code: ReceivingApproved},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:               "submit_for_analysis",
				Sources:            []models.State{ReceivingCreated},
				Target:             ReceivingSentForAnalysis,
				AllowedRoles:       []models.Role{models.RoleSupplier},
				RequireAttachments: true,
			},
			{
				Name:                 "request_correction",
				Sources:              []models.State{ReceivingSentForAnalysis},
				Target:               ReceivingCorrectionRequested,
				AllowedRoles:         []models.Role{models.RoleQualityDivision},
				RequireJustification: true,
			},
			{
				Name:         "approve",
				Sources:      []models.State{ReceivingSentForAnalysis},
				Target:       ReceivingApproved,
				AllowedRoles: []models.Role{models.RoleQualityDivision},
			},
			{
				Name:         "resubmit_correction",
				Sources:      []models.State{ReceivingCorrectionRequested},
				Target:       ReceivingSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
			{
				Name:         "supplier_updates",
				Sources:      []models.State{ReceivingApproved},
				Target:       ReceivingSentForAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
		},
		DeletableFrom: []models.State{ReceivingCreated},
		Correction: CorrectionShape{
			RequestTransition:  "request_correction",
			ResubmitTransition: "resubmit_correction",
			CorrectionState:    ReceivingCorrectionRequested,
		},
	}
}

// Product homologation: product management analyses, the authority gives the
// final word. NOT_HOMOLOGATED is terminal; homologated products can still be
// suspended through a fresh homologation request, so HOMOLOGATED is not.
const (
	HomologAwaitingAnalysis   = models.State("AWAITING_ANALYSIS")
	HomologPendingApproval    = models.State("PENDING_APPROVAL")
	HomologHomologated        = models.State("HOMOLOGATED")
	HomologNotHomologated     = models.State("NOT_HOMOLOGATED")
	HomologCorrectionRequired = models.State("CORRECTION_REQUESTED")
)

var productHomologationCodes = map[string]int{
	"analyst_approves":            501,
	"analyst_requests_correction": 502,
	"supplier_resubmits":          503,
	"authority_homologates":       504,
	"authority_rejects":           505,
}

func productHomologation() *Machine {
	return &Machine{
		Kind:    models.KindProductHomologation,
		Initial: HomologAwaitingAnalysis,
		States: []models.StateDefinition{
			{Code: HomologAwaitingAnalysis},
			{Code: HomologPendingApproval},
			{Code: HomologHomologated},
			{Code: HomologNotHomologated, Terminal: true},
			{Code: HomologCorrectionRequired},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:         "analyst_approves",
				Sources:      []models.State{HomologAwaitingAnalysis},
				Target:       HomologPendingApproval,
				AllowedRoles: []models.Role{models.RoleProductManager},
			},
			{
				Name:                 "analyst_requests_correction",
				Sources:              []models.State{HomologAwaitingAnalysis},
				Target:               HomologCorrectionRequired,
				AllowedRoles:         []models.Role{models.RoleProductManager},
				RequireJustification: true,
			},
			{
				Name:         "supplier_resubmits",
				Sources:      []models.State{HomologCorrectionRequired},
				Target:       HomologAwaitingAnalysis,
				AllowedRoles: []models.Role{models.RoleSupplier},
			},
			{
				Name:         "authority_homologates",
				Sources:      []models.State{HomologPendingApproval},
				Target:       HomologHomologated,
				AllowedRoles: []models.Role{models.RoleAuthorityCabinet},
			},
			{
				Name:                 "authority_rejects",
				Sources:              []models.State{HomologPendingApproval},
				Target:               HomologNotHomologated,
				AllowedRoles:         []models.Role{models.RoleAuthorityCabinet},
				RequireJustification: true,
			},
		},
		Correction: CorrectionShape{
			RequestTransition:  "analyst_requests_correction",
			ResubmitTransition: "supplier_resubmits",
			CorrectionState:    HomologCorrectionRequired,
		},
	}
}

// Initial measurement report: schools report served-meal counts; the regional
// directorate reviews, possibly over several correction rounds.
const (
	MeasurementOpenForEntry        = models.State("OPEN_FOR_ENTRY")
	MeasurementSentForReview       = models.State("SENT_FOR_REVIEW")
	MeasurementCorrectionRequested = models.State("CORRECTION_REQUESTED")
	MeasurementResubmitted         = models.State("RESUBMITTED")
	MeasurementApproved            = models.State("APPROVED_BY_AUTHORITY")
)

var measurementReportCodes = map[string]int{
	"school_submits":               601,
	"reviewer_requests_correction": 602,
	"school_resubmits":             603,
	"reviewer_approves":            604,
}

func measurementReport() *Machine {
	return &Machine{
		Kind:    models.KindMeasurementReport,
		Initial: MeasurementOpenForEntry,
		States: []models.StateDefinition{
			{Code: MeasurementOpenForEntry},
			{Code: MeasurementSentForReview},
			{Code: MeasurementCorrectionRequested},
			{Code: MeasurementResubmitted},
			{Code: MeasurementApproved, Terminal: true},
		},
		Transitions: []models.TransitionDefinition{
			{
				Name:         "school_submits",
				Sources:      []models.State{MeasurementOpenForEntry},
				Target:       MeasurementSentForReview,
				AllowedRoles: []models.Role{models.RoleSchoolStaff},
			},
			{
				Name:                 "reviewer_requests_correction",
				Sources:              []models.State{MeasurementSentForReview, MeasurementResubmitted},
				Target:               MeasurementCorrectionRequested,
				AllowedRoles:         []models.Role{models.RoleRegionalDirector},
				RequireJustification: true,
			},
			{
				Name:         "school_resubmits",
				Sources:      []models.State{MeasurementCorrectionRequested},
				Target:       MeasurementResubmitted,
				AllowedRoles: []models.Role{models.RoleSchoolStaff},
			},
			{
				Name:         "reviewer_approves",
				Sources:      []models.State{MeasurementSentForReview, MeasurementResubmitted},
				Target:       MeasurementApproved,
				AllowedRoles: []models.Role{models.RoleRegionalDirector},
			},
		},
		Correction: CorrectionShape{
			RequestTransition:  "reviewer_requests_correction",
			ResubmitTransition: "school_resubmits",
			CorrectionState:    MeasurementCorrectionRequested,
		},
	}
}
