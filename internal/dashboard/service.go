package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mealflow/internal/platform/metrics"
	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/store"
)

// QueryStore answers dashboard projections. Reads are unlocked against writes
// and may trail the newest transition by one step; at human approval time
// constants that staleness is invisible.
type QueryStore interface {
	CountByStates(ctx context.Context, q store.Query) (int, error)
	ListByStates(ctx context.Context, q store.Query) ([]models.Entity, error)
}

// Bucket is one per-state card: its total and one page of items.
type Bucket struct {
	State models.State
	Total int
	Items []models.Entity
}

// Page is a flat merged view over several states ("see more").
type Page struct {
	States []models.State
	Total  int
	Items  []models.Entity
}

// DefaultPageSize mirrors the card size of the operational dashboards.
const DefaultPageSize = 6

// Aggregator builds role-scoped dashboard projections.
type Aggregator struct {
	visibility *VisibilityMap
	entities   QueryStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics wires prometheus histograms.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator constructs the dashboard aggregator.
func NewAggregator(visibility *VisibilityMap, entities QueryStore, logger *slog.Logger, opts ...Option) (*Aggregator, error) {
	if visibility == nil {
		return nil, fmt.Errorf("aggregator: visibility map is required")
	}
	if entities == nil {
		return nil, fmt.Errorf("aggregator: query store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{visibility: visibility, entities: entities, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Summarize returns one bucket per state visible to the actor's role, each
// independently filtered, counted and paginated, ordered by last movement
// descending within the bucket.
func (a *Aggregator) Summarize(ctx context.Context, kind models.EntityKind, actor models.Actor, filters models.Filters, offset, limit int) ([]Bucket, error) {
	defer a.observe(kind, time.Now())

	visible, err := a.visibility.StatesVisibleTo(kind, actor.Role)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	buckets := make([]Bucket, 0, len(visible))
	for _, state := range visible {
		q := a.query(kind, []models.State{state}, actor, filters, offset, limit)
		total, err := a.entities.CountByStates(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("count %s bucket %s: %w", kind, state, err)
		}
		items, err := a.entities.ListByStates(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("list %s bucket %s: %w", kind, state, err)
		}
		buckets = append(buckets, Bucket{State: state, Total: total, Items: items})
	}
	return buckets, nil
}

// DrillDown merges the requested states into one flat ordered page. States the
// role cannot see are dropped; an empty request means every visible state. A
// request naming only invisible states yields an empty page, never a silently
// widened one.
func (a *Aggregator) DrillDown(ctx context.Context, kind models.EntityKind, states []models.State, actor models.Actor, filters models.Filters, offset, limit int) (Page, error) {
	defer a.observe(kind, time.Now())

	visible, err := a.visibility.StatesVisibleTo(kind, actor.Role)
	if err != nil {
		return Page{}, err
	}
	selected := visible
	if len(states) > 0 {
		selected = intersect(states, visible)
	}
	if len(selected) == 0 {
		return Page{}, nil
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	q := a.query(kind, selected, actor, filters, offset, limit)
	total, err := a.entities.CountByStates(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("count %s drill-down: %w", kind, err)
	}
	items, err := a.entities.ListByStates(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("list %s drill-down: %w", kind, err)
	}
	return Page{States: selected, Total: total, Items: items}, nil
}

func (a *Aggregator) query(kind models.EntityKind, states []models.State, actor models.Actor, filters models.Filters, offset, limit int) store.Query {
	q := store.Query{
		Kind:    kind,
		States:  states,
		Filters: filters,
		Offset:  offset,
		Limit:   limit,
	}
	if a.visibility.OrgScoped(actor.Role) {
		q.OrgBinding = actor.OrgBinding
	}
	return q
}

func (a *Aggregator) observe(kind models.EntityKind, start time.Time) {
	if a.metrics != nil {
		a.metrics.DashboardQueryDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}
}

func intersect(requested, visible []models.State) []models.State {
	var out []models.State
	for _, r := range requested {
		for _, v := range visible {
			if r == v {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
