package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mealflow/pkg/sentinel"
)

// InMemoryStore keeps queued tasks in memory for unit tests and local runs.
type InMemoryStore struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
}

// NewInMemoryStore returns an empty in-memory outbox.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Close stops the queue. Every later call returns sentinel.ErrClosed, which
// also tells a running dispatcher to stop sweeping.
func (s *InMemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Enqueue appends a task.
func (s *InMemoryStore) Enqueue(_ context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sentinel.ErrClosed
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Pending returns up to limit undone tasks in enqueue order.
func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, sentinel.ErrClosed
	}
	var out []Task
	for _, t := range s.tasks {
		if t.DoneAt == nil {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// MarkDone stamps a task as processed.
func (s *InMemoryStore) MarkDone(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sentinel.ErrClosed
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].DoneAt = &at
			return nil
		}
	}
	return nil
}
