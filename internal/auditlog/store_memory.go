package auditlog

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
)

type logKey struct {
	kind models.EntityKind
	id   uuid.UUID
}

// InMemoryStore keeps audit entries in memory for unit tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[logKey][]Entry
	seq     int64
}

// NewInMemoryStore returns an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[logKey][]Entry)}
}

// Append stores a copy of the entry and assigns its insertion sequence.
func (s *InMemoryStore) Append(_ context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry.Seq = s.seq
	entry.Attachments = append([]models.Attachment(nil), entry.Attachments...)
	key := logKey{kind: entry.Kind, id: entry.EntityUUID}
	s.entries[key] = append(s.entries[key], entry)
	return entry, nil
}

// MostRecent returns the last entry by timestamp, ties broken by sequence.
func (s *InMemoryStore) MostRecent(_ context.Context, kind models.EntityKind, entityUUID uuid.UUID) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[logKey{kind: kind, id: entityUUID}]
	if len(list) == 0 {
		return Entry{}, sentinel.ErrNotFound
	}
	latest := list[0]
	for _, e := range list[1:] {
		if e.CreatedAt.After(latest.CreatedAt) ||
			(e.CreatedAt.Equal(latest.CreatedAt) && e.Seq > latest.Seq) {
			latest = e
		}
	}
	return latest, nil
}

// History yields a snapshot of the entity's entries ordered by timestamp then
// sequence. Each range takes a fresh snapshot, so the sequence is restartable.
func (s *InMemoryStore) History(kind models.EntityKind, entityUUID uuid.UUID) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.RLock()
		list := append([]Entry(nil), s.entries[logKey{kind: kind, id: entityUUID}]...)
		s.mu.RUnlock()

		sort.Slice(list, func(i, j int) bool {
			if list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].Seq < list[j].Seq
			}
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
		for _, e := range list {
			if !yield(e, nil) {
				return
			}
		}
	}
}
