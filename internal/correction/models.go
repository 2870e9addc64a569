// Package correction implements the request-fix/resubmit cycle layered on the
// base approval machine: a reviewer flags sub-parts of a record for fixing,
// the submitter may edit exactly those sub-parts, and the record returns to
// analysis. Cycles repeat without limit; each one is separately audited.
package correction

import (
	"time"

	"mealflow/internal/workflow/models"
)

// Verdict is a reviewer's recorded answer for one sub-part.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictNeedsFix Verdict = "NEEDS_FIX"
)

// ReviewFlags captures one open correction request: which sub-parts passed
// and which the submitter must fix. Only the flagged sub-parts become
// editable; everything else stays frozen.
type ReviewFlags struct {
	Ref            models.Ref
	ApprovedFields []string
	FlaggedFields  []string
	Round          int
	RequestedAt    time.Time
}

// Flagged reports whether the field is open for editing.
func (f ReviewFlags) Flagged(field string) bool {
	for _, name := range f.FlaggedFields {
		if name == field {
			return true
		}
	}
	return false
}

// Status is the correction-cycle view of an entity, exposed alongside the
// workflow status so reviews can distinguish a first analysis from a re-review.
type Status struct {
	Round         int
	FirstAnalysis bool
	FlaggedFields []string
	FullyApproved bool
}
