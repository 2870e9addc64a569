// Package outbox queues slow side effects of applied transitions (report
// rendering requests, notification fan-out) so they never run synchronously
// inside the atomic unit. Tasks are written in the same transaction as the
// status update and drained by a dispatcher after commit.
package outbox

import (
	"time"

	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
)

// TaskType names what the dispatcher should do with a task.
type TaskType string

const (
	// TaskTransitionApplied fans out to whatever downstream consumers care
	// about a movement (report rendering, notifications). Delivery itself is
	// out of scope here; the queue is the seam.
	TaskTransitionApplied TaskType = "TRANSITION_APPLIED"
)

// Task is one queued side effect.
type Task struct {
	ID         uuid.UUID
	Kind       models.EntityKind
	EntityUUID uuid.UUID
	TaskType   TaskType
	Detail     string
	CreatedAt  time.Time
	DoneAt     *time.Time
}
