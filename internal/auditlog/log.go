package auditlog

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
)

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// Store persists audit entries. Append is the only write; there is
// deliberately no way to mutate or remove an entry.
type Store interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	// MostRecent returns the last entry by timestamp, ties broken by
	// insertion order. Returns sentinel.ErrNotFound when no entry exists.
	MostRecent(ctx context.Context, kind models.EntityKind, entityUUID uuid.UUID) (Entry, error)
	// History yields the full ordered history of an entity. The sequence is
	// lazy and restartable: each range re-reads from the store.
	History(kind models.EntityKind, entityUUID uuid.UUID) iter.Seq2[Entry, error]
}

// Log stamps and appends entries. It fails only on storage errors, never on
// business rules; guarding belongs to the transition executor.
type Log struct {
	store Store
	clock Clock
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(l *Log) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New constructs a Log over the given store.
func New(store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("auditlog: store is required")
	}
	l := &Log{store: store, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Append stamps the entry with an ID and timestamp (if unset) and persists it.
func (l *Log) Append(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.clock()
	}
	stored, err := l.store.Append(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return stored, nil
}

// MostRecent returns the latest movement of an entity, used for dashboard
// ordering and "last movement" display.
func (l *Log) MostRecent(ctx context.Context, kind models.EntityKind, entityUUID uuid.UUID) (Entry, error) {
	return l.store.MostRecent(ctx, kind, entityUUID)
}

// History returns the entity's full ordered history.
func (l *Log) History(kind models.EntityKind, entityUUID uuid.UUID) iter.Seq2[Entry, error] {
	return l.store.History(kind, entityUUID)
}
