package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies which workflow graph governs a record. Every business
// document in the platform is one of these kinds; the mechanics are shared.
type EntityKind string

const (
	KindDeliverySchedule    EntityKind = "DELIVERY_SCHEDULE"
	KindTechSheet           EntityKind = "TECH_SHEET"
	KindPackagingLayout     EntityKind = "PACKAGING_LAYOUT"
	KindReceivingDocument   EntityKind = "RECEIVING_DOCUMENT"
	KindProductHomologation EntityKind = "PRODUCT_HOMOLOGATION"
	KindMeasurementReport   EntityKind = "MEASUREMENT_REPORT"
)

// IsValid checks if the entity kind is one of the supported enum values.
func (k EntityKind) IsValid() bool {
	switch k {
	case KindDeliverySchedule, KindTechSheet, KindPackagingLayout,
		KindReceivingDocument, KindProductHomologation, KindMeasurementReport:
		return true
	}
	return false
}

// String returns the string representation.
func (k EntityKind) String() string {
	return string(k)
}

// State is the persisted status code of a workflow entity. Codes are short
// uppercase strings (e.g. DRAFT, AWAITING_SIGNATURE) and are stable forever.
type State string

// String returns the string representation.
func (s State) String() string {
	return string(s)
}

// StateDefinition declares one state of a workflow graph.
type StateDefinition struct {
	Code     State
	Terminal bool
}

// Role is the profile name resolved by the identity service for the acting
// user. Roles gate transitions and scope dashboard queues.
type Role string

const (
	RoleSupplier             Role = "SUPPLIER"
	RoleLogisticsCoordinator Role = "LOGISTICS_COORDINATOR"
	RoleSupplyDivision       Role = "SUPPLY_DIVISION"
	RoleQualityDivision      Role = "QUALITY_DIVISION"
	RoleProductManager       Role = "PRODUCT_MANAGER"
	RoleAuthorityCabinet     Role = "AUTHORITY_CABINET"
	RoleSchoolStaff          Role = "SCHOOL_STAFF"
	RoleRegionalDirector     Role = "REGIONAL_DIRECTOR"
	RoleViewer               Role = "VIEWER"
)

// IsValid checks if the role is one of the known profile names.
func (r Role) IsValid() bool {
	switch r {
	case RoleSupplier, RoleLogisticsCoordinator, RoleSupplyDivision,
		RoleQualityDivision, RoleProductManager, RoleAuthorityCabinet,
		RoleSchoolStaff, RoleRegionalDirector, RoleViewer:
		return true
	}
	return false
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// Actor is the authenticated principal attempting an operation. OrgBinding is
// an opaque organization id used for ownership scoping: a supplier only sees
// and moves its own records.
type Actor struct {
	UserID     uuid.UUID
	Role       Role
	OrgBinding string
}

// TransitionDefinition declares one guarded edge of a workflow graph.
// A transition may leave from several source states but always lands on
// exactly one target.
type TransitionDefinition struct {
	Name                 string
	Sources              []State
	Target               State
	AllowedRoles         []Role
	RequireJustification bool
	RequireAttachments   bool
}

// AllowsFrom reports whether the transition may leave from the given state.
func (t TransitionDefinition) AllowsFrom(s State) bool {
	for _, src := range t.Sources {
		if src == s {
			return true
		}
	}
	return false
}

// AllowsRole reports whether the given role may execute the transition.
func (t TransitionDefinition) AllowsRole(r Role) bool {
	for _, allowed := range t.AllowedRoles {
		if allowed == r {
			return true
		}
	}
	return false
}

// Entity is the workflow-visible projection of any governed record. Concrete
// document payloads live in their own tables; the engine only touches this.
type Entity struct {
	UUID             uuid.UUID
	Kind             EntityKind
	Status           State
	OrgBinding       string
	CreatedAt        time.Time
	LastTransitionAt *time.Time
	DeletedAt        *time.Time
}

// LastTransitionAtOrCreated is the entity's last movement time, falling back
// to creation time when it has never moved. Dashboards order by this.
func (e Entity) LastTransitionAtOrCreated() time.Time {
	if e.LastTransitionAt != nil {
		return *e.LastTransitionAt
	}
	return e.CreatedAt
}

// Ref identifies one workflow entity.
type Ref struct {
	Kind EntityKind
	UUID uuid.UUID
}

// Attachment is an ordered (filename, content reference) pair supplied with a
// transition. Only presence and order matter here; storage is delegated.
type Attachment struct {
	Filename   string
	ContentRef string
}

// Payload carries the caller-supplied data of one transition attempt.
// Fields holds domain values passed through to side-effect hooks unchanged.
type Payload struct {
	Justification string
	Attachments   []Attachment
	Fields        map[string]string
}

// Filters are domain query parameters passed through to dashboard stores
// unchanged (e.g. schedule number, product name).
type Filters map[string]string
