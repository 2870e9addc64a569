// Package store persists workflow entities. Both implementations maintain the
// denormalized last_transition_at column the dashboards order by, updated in
// the same unit as every status change.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
)

// Query selects dashboard pages: one kind, a set of states, optional
// organization scoping and pass-through filters.
type Query struct {
	Kind       models.EntityKind
	States     []models.State
	OrgBinding string
	Filters    models.Filters
	Offset     int
	Limit      int
}

// InMemoryStore keeps entities in memory for unit tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	entities map[models.Ref]models.Entity
}

// NewInMemoryStore returns an empty in-memory entity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entities: make(map[models.Ref]models.Entity)}
}

// Create stores a new entity.
func (s *InMemoryStore) Create(_ context.Context, entity models.Entity) (models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := models.Ref{Kind: entity.Kind, UUID: entity.UUID}
	if _, exists := s.entities[ref]; exists {
		return models.Entity{}, sentinel.ErrConflict
	}
	s.entities[ref] = entity
	return entity, nil
}

// Get loads one entity. Soft-deleted entities are not found.
func (s *InMemoryStore) Get(_ context.Context, ref models.Ref) (models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[ref]
	if !ok || entity.DeletedAt != nil {
		return models.Entity{}, sentinel.ErrNotFound
	}
	return entity, nil
}

// UpdateStatus swaps the status only if the stored status still equals
// expected, so racing transitions from the same source state cannot both win.
func (s *InMemoryStore) UpdateStatus(_ context.Context, ref models.Ref, expected, next models.State, at time.Time) (models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[ref]
	if !ok || entity.DeletedAt != nil {
		return models.Entity{}, sentinel.ErrNotFound
	}
	if entity.Status != expected {
		return models.Entity{}, sentinel.ErrConflict
	}
	entity.Status = next
	entity.LastTransitionAt = &at
	s.entities[ref] = entity
	return entity, nil
}

// Revert restores a prior status and last transition time after a failed side
// effect. The swap is optimistic like UpdateStatus.
func (s *InMemoryStore) Revert(_ context.Context, ref models.Ref, expected models.State, prior models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[ref]
	if !ok || entity.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	if entity.Status != expected {
		return sentinel.ErrConflict
	}
	entity.Status = prior.Status
	entity.LastTransitionAt = prior.LastTransitionAt
	s.entities[ref] = entity
	return nil
}

// SoftDelete marks the entity deleted if its status is still the expected one.
func (s *InMemoryStore) SoftDelete(_ context.Context, ref models.Ref, expected models.State, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[ref]
	if !ok || entity.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	if entity.Status != expected {
		return sentinel.ErrConflict
	}
	entity.DeletedAt = &at
	s.entities[ref] = entity
	return nil
}

// CountByStates counts matching entities.
func (s *InMemoryStore) CountByStates(_ context.Context, q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(q)), nil
}

// ListByStates returns one ordered page of matching entities, most recently
// moved first; entities never moved sort by creation time.
func (s *InMemoryStore) ListByStates(_ context.Context, q Query) ([]models.Entity, error) {
	s.mu.RLock()
	matched := s.matching(q)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastTransitionAtOrCreated().After(matched[j].LastTransitionAtOrCreated())
	})

	if q.Offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return append([]models.Entity(nil), matched[q.Offset:end]...), nil
}

func (s *InMemoryStore) matching(q Query) []models.Entity {
	var out []models.Entity
	for _, entity := range s.entities {
		if entity.Kind != q.Kind || entity.DeletedAt != nil {
			continue
		}
		if !stateIn(entity.Status, q.States) {
			continue
		}
		if q.OrgBinding != "" && entity.OrgBinding != q.OrgBinding {
			continue
		}
		if !matchesFilters(entity, q.Filters) {
			continue
		}
		out = append(out, entity)
	}
	return out
}

func stateIn(s models.State, states []models.State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}

// matchesFilters applies the pass-through domain filters this projection can
// answer. Unknown filter keys exclude nothing; the owning domain applies them
// on its own tables.
func matchesFilters(e models.Entity, filters models.Filters) bool {
	for key, value := range filters {
		switch key {
		case "org":
			if e.OrgBinding != value {
				return false
			}
		case "created_from":
			from, err := time.Parse(time.RFC3339, value)
			if err != nil || e.CreatedAt.Before(from) {
				return false
			}
		case "created_to":
			to, err := time.Parse(time.RFC3339, value)
			if err != nil || e.CreatedAt.After(to) {
				return false
			}
		}
	}
	return true
}
