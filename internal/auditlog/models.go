// Package auditlog is the append-only history of every applied transition.
// Entries are immutable once written: the store interface exposes no update
// or delete, so editing history is impossible by construction.
package auditlog

import (
	"time"

	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
)

// Entry records one applied transition: who moved what, when, and why.
// EventCode maps 1:1 to a transition name through the registry's fixed table;
// historic entries keep referencing retired codes forever.
type Entry struct {
	ID            uuid.UUID
	Kind          models.EntityKind
	EntityUUID    uuid.UUID
	EventCode     int
	ActorID       uuid.UUID
	ActorRole     models.Role
	Justification string
	Attachments   []models.Attachment
	CreatedAt     time.Time
	// Seq is the store-assigned insertion order, used to break timestamp ties.
	Seq int64
}
