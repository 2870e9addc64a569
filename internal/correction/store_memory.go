package correction

import (
	"context"
	"sync"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
)

// InMemoryStore keeps correction flags, record fields and reviewer answers in
// memory. It backs unit tests and doubles as the record seam for kinds whose
// document tables are not wired yet.
type InMemoryStore struct {
	mu      sync.RWMutex
	flags   map[models.Ref]ReviewFlags
	rounds  map[models.Ref]int
	fields  map[models.Ref]map[string]string
	answers map[models.Ref]map[string]Verdict
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flags:   make(map[models.Ref]ReviewFlags),
		rounds:  make(map[models.Ref]int),
		fields:  make(map[models.Ref]map[string]string),
		answers: make(map[models.Ref]map[string]Verdict),
	}
}

// Save stores the open correction request and bumps the round counter.
func (s *InMemoryStore) Save(_ context.Context, flags ReviewFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags.ApprovedFields = append([]string(nil), flags.ApprovedFields...)
	flags.FlaggedFields = append([]string(nil), flags.FlaggedFields...)
	s.flags[flags.Ref] = flags
	if flags.Round > s.rounds[flags.Ref] {
		s.rounds[flags.Ref] = flags.Round
	}
	return nil
}

// Get returns the open correction request.
func (s *InMemoryStore) Get(_ context.Context, ref models.Ref) (ReviewFlags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flags, ok := s.flags[ref]
	if !ok {
		return ReviewFlags{}, sentinel.ErrNotFound
	}
	return flags, nil
}

// Clear closes the open correction request. Round history is kept.
func (s *InMemoryStore) Clear(_ context.Context, ref models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, ref)
	return nil
}

// Rounds returns how many correction rounds the entity has been through.
func (s *InMemoryStore) Rounds(_ context.Context, ref models.Ref) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rounds[ref], nil
}

// SetField sets one canonical field value; used to seed records in tests.
func (s *InMemoryStore) SetField(ref models.Ref, field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields[ref] == nil {
		s.fields[ref] = make(map[string]string)
	}
	s.fields[ref][field] = value
}

// Field reads one canonical field value.
func (s *InMemoryStore) Field(ref models.Ref, field string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[ref][field]
}

// MergeFields merges the corrected values into the canonical record.
func (s *InMemoryStore) MergeFields(_ context.Context, ref models.Ref, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields[ref] == nil {
		s.fields[ref] = make(map[string]string)
	}
	for field, value := range values {
		s.fields[ref][field] = value
	}
	return nil
}

// SetAnswer records the reviewer's verdict for one sub-part.
func (s *InMemoryStore) SetAnswer(_ context.Context, ref models.Ref, field string, verdict Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers[ref] == nil {
		s.answers[ref] = make(map[string]Verdict)
	}
	s.answers[ref][field] = verdict
	return nil
}

// ClearAnswers removes verdicts for the given sub-parts only.
func (s *InMemoryStore) ClearAnswers(_ context.Context, ref models.Ref, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, field := range fields {
		delete(s.answers[ref], field)
	}
	return nil
}

// Answers returns a copy of the recorded verdicts.
func (s *InMemoryStore) Answers(_ context.Context, ref models.Ref) (map[string]Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Verdict, len(s.answers[ref]))
	for field, verdict := range s.answers[ref] {
		out[field] = verdict
	}
	return out, nil
}
