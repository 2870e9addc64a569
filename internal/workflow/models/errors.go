package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of workflow failure categories. Handlers map
// these onto HTTP statuses; services never invent new categories.
type ErrorKind string

const (
	// ErrInvalidTransition: current status is not a source of the attempted
	// transition. Recoverable: refresh state and retry.
	ErrInvalidTransition ErrorKind = "INVALID_TRANSITION"
	// ErrUnauthorized: the actor's role is not allowed on this transition.
	ErrUnauthorized ErrorKind = "UNAUTHORIZED"
	// ErrValidationFailed: a required payload field is missing.
	ErrValidationFailed ErrorKind = "VALIDATION_FAILED"
	// ErrIncompleteCorrection: a resubmission omitted a flagged field.
	ErrIncompleteCorrection ErrorKind = "INCOMPLETE_CORRECTION"
	// ErrFrozenFieldEdited: a resubmission altered a field not flagged for fix.
	ErrFrozenFieldEdited ErrorKind = "FROZEN_FIELD_EDITED"
	// ErrWrongPriorState: resubmit attempted outside the correction state.
	ErrWrongPriorState ErrorKind = "WRONG_PRIOR_STATE"
	// ErrUnknownRole: the role has no visibility configuration. Fatal until an
	// operator fixes the map; never silently treated as an empty queue.
	ErrUnknownRole ErrorKind = "UNKNOWN_ROLE"
)

// TransitionError is the structured failure of a workflow operation. It always
// carries enough detail to report what was attempted against what state.
type TransitionError struct {
	Kind       ErrorKind
	EntityKind EntityKind
	EntityUUID string
	Transition string
	Current    State
	Detail     string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	if e.Transition != "" {
		msg = fmt.Sprintf("%s (transition %q, current status %q)", msg, e.Transition, e.Current)
	}
	return msg
}

// Is lets errors.Is match on the category via the exported kind sentinels.
func (e *TransitionError) Is(target error) bool {
	var te *TransitionError
	if errors.As(target, &te) {
		return te.Kind == e.Kind && (te.Transition == "" || te.Transition == e.Transition)
	}
	return false
}

// NewTransitionError builds a TransitionError for the given entity and attempt.
func NewTransitionError(kind ErrorKind, ref Ref, transition string, current State, detail string) *TransitionError {
	return &TransitionError{
		Kind:       kind,
		EntityKind: ref.Kind,
		EntityUUID: ref.UUID.String(),
		Transition: transition,
		Current:    current,
		Detail:     detail,
	}
}

// ErrorKindOf extracts the category of a workflow error, or "" for
// infrastructure errors.
func ErrorKindOf(err error) ErrorKind {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
