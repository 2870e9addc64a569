// Package service implements the generic transition executor. It knows no
// particular workflow graph: every guard comes from the registry's declarative
// tables, and every successful transition produces exactly one audit entry in
// the same atomic unit as the status write.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mealflow/internal/auditlog"
	"mealflow/internal/outbox"
	"mealflow/internal/platform/metrics"
	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/registry"
	"mealflow/pkg/sentinel"
)

// EntityStore persists workflow entities. UpdateStatus is an optimistic swap:
// it succeeds only if the stored status still equals expected, and returns
// sentinel.ErrConflict otherwise. Of two racing writers from the same source
// state, exactly one wins.
type EntityStore interface {
	Create(ctx context.Context, entity models.Entity) (models.Entity, error)
	Get(ctx context.Context, ref models.Ref) (models.Entity, error)
	UpdateStatus(ctx context.Context, ref models.Ref, expected, next models.State, at time.Time) (models.Entity, error)
	// Revert undoes a status swap after a failed side effect, restoring both
	// the status and the last transition time captured before the swap.
	Revert(ctx context.Context, ref models.Ref, expected models.State, prior models.Entity) error
	SoftDelete(ctx context.Context, ref models.Ref, expected models.State, at time.Time) error
}

// TxRunner executes fn as one atomic unit. The SQL implementation opens a
// transaction and carries it in ctx so every store write inside fn joins it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outbox queues slow side effects (report rendering, notification fan-out)
// for execution after commit, never synchronously inside the atomic unit.
type Outbox interface {
	Enqueue(ctx context.Context, task outbox.Task) error
}

// HookContext is what a side-effect hook sees about the applied transition.
type HookContext struct {
	Entity     models.Entity
	Transition models.TransitionDefinition
	Actor      models.Actor
	Payload    models.Payload
}

// Hook runs inside the atomic unit after the status swap. A hook failure
// rolls back the whole transition.
type Hook func(ctx context.Context, hc HookContext) error

type hookKey struct {
	kind       models.EntityKind
	transition string
}

// Executor performs guarded transitions for every entity kind.
type Executor struct {
	registry *registry.Registry
	entities EntityStore
	log      *auditlog.Log
	runner   TxRunner
	outbox   Outbox
	hooks    map[hookKey][]Hook
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithOutbox wires the post-commit task queue.
func WithOutbox(ob Outbox) Option {
	return func(e *Executor) { e.outbox = ob }
}

// WithMetrics wires prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor constructs the transition executor.
func NewExecutor(reg *registry.Registry, entities EntityStore, log *auditlog.Log, runner TxRunner, logger *slog.Logger, opts ...Option) (*Executor, error) {
	if reg == nil {
		return nil, fmt.Errorf("executor: registry is required")
	}
	if entities == nil {
		return nil, fmt.Errorf("executor: entity store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("executor: audit log is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("executor: tx runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		registry: reg,
		entities: entities,
		log:      log,
		runner:   runner,
		hooks:    make(map[hookKey][]Hook),
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// RegisterHook attaches a side-effect hook to one transition of one kind.
func (e *Executor) RegisterHook(kind models.EntityKind, transition string, hook Hook) {
	key := hookKey{kind: kind, transition: transition}
	e.hooks[key] = append(e.hooks[key], hook)
}

// Create persists a new entity in its kind's initial state.
func (e *Executor) Create(ctx context.Context, entity models.Entity) (models.Entity, error) {
	machine, err := e.registry.Machine(entity.Kind)
	if err != nil {
		return models.Entity{}, err
	}
	entity.Status = machine.Initial
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = e.clock()
	}
	created, err := e.entities.Create(ctx, entity)
	if err != nil {
		return models.Entity{}, fmt.Errorf("create %s: %w", entity.Kind, err)
	}
	return created, nil
}

// Get loads one entity.
func (e *Executor) Get(ctx context.Context, ref models.Ref) (models.Entity, error) {
	return e.entities.Get(ctx, ref)
}

// Execute applies the named transition on behalf of the actor. On success the
// entity sits on the transition's target state and exactly one audit entry
// exists for the movement. On failure the entity is untouched.
func (e *Executor) Execute(ctx context.Context, ref models.Ref, transitionName string, actor models.Actor, payload models.Payload) (models.Entity, error) {
	entity, err := e.execute(ctx, ref, transitionName, actor, payload)
	e.observe(ctx, ref, transitionName, actor, err)
	return entity, err
}

func (e *Executor) execute(ctx context.Context, ref models.Ref, transitionName string, actor models.Actor, payload models.Payload) (models.Entity, error) {
	machine, err := e.registry.Machine(ref.Kind)
	if err != nil {
		return models.Entity{}, err
	}
	transition, ok := machine.Transition(transitionName)
	if !ok {
		return models.Entity{}, models.NewTransitionError(
			models.ErrInvalidTransition, ref, transitionName, "",
			fmt.Sprintf("kind %s has no transition %q", ref.Kind, transitionName))
	}
	eventCode, err := e.registry.EventCode(ref.Kind, transitionName)
	if err != nil {
		return models.Entity{}, err
	}

	var result models.Entity
	err = e.runner.RunInTx(ctx, func(ctx context.Context) error {
		entity, err := e.entities.Get(ctx, ref)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", ref.Kind, ref.UUID, err)
		}
		if err := guard(ref, entity, transition, actor, payload); err != nil {
			return err
		}

		now := e.clock()
		updated, err := e.entities.UpdateStatus(ctx, ref, entity.Status, transition.Target, now)
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent transition won the race. Re-read so the error
			// reports the status the caller will now see.
			current, getErr := e.entities.Get(ctx, ref)
			if getErr != nil {
				return fmt.Errorf("reload after conflict: %w", getErr)
			}
			return models.NewTransitionError(
				models.ErrInvalidTransition, ref, transitionName, current.Status,
				"entity was moved by a concurrent transition")
		}
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		if err := e.afterSwap(ctx, updated, transition, actor, payload, eventCode, now); err != nil {
			// Best-effort compensation for non-transactional stores. The
			// pre-swap snapshot keeps the failed attempt out of the
			// last-transition ordering. Under a SQL transaction the rollback
			// supersedes it.
			_ = e.entities.Revert(ctx, ref, transition.Target, entity)
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return models.Entity{}, err
	}
	return result, nil
}

// afterSwap runs hooks, appends the audit entry and queues outbox tasks, all
// inside the atomic unit.
func (e *Executor) afterSwap(ctx context.Context, entity models.Entity, transition models.TransitionDefinition, actor models.Actor, payload models.Payload, eventCode int, now time.Time) error {
	hc := HookContext{Entity: entity, Transition: transition, Actor: actor, Payload: payload}
	for _, hook := range e.hooks[hookKey{kind: entity.Kind, transition: transition.Name}] {
		if err := hook(ctx, hc); err != nil {
			return fmt.Errorf("hook for %s.%s: %w", entity.Kind, transition.Name, err)
		}
	}

	_, err := e.log.Append(ctx, auditlog.Entry{
		Kind:          entity.Kind,
		EntityUUID:    entity.UUID,
		EventCode:     eventCode,
		ActorID:       actor.UserID,
		ActorRole:     actor.Role,
		Justification: payload.Justification,
		Attachments:   payload.Attachments,
		CreatedAt:     now,
	})
	if err != nil {
		return err
	}

	if e.outbox != nil {
		task := outbox.Task{
			Kind:       entity.Kind,
			EntityUUID: entity.UUID,
			TaskType:   outbox.TaskTransitionApplied,
			Detail:     transition.Name,
			CreatedAt:  now,
		}
		if err := e.outbox.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue outbox task: %w", err)
		}
		if e.metrics != nil {
			e.metrics.OutboxTasksQueued.Inc()
		}
	}
	return nil
}

// guard checks every precondition of the transition. Returns a typed
// TransitionError; never mutates anything.
func guard(ref models.Ref, entity models.Entity, transition models.TransitionDefinition, actor models.Actor, payload models.Payload) error {
	if !transition.AllowsFrom(entity.Status) {
		detail := "current status is not a source of this transition"
		if entity.Status == transition.Target {
			detail = "transition already applied"
		}
		return models.NewTransitionError(
			models.ErrInvalidTransition, ref, transition.Name, entity.Status, detail)
	}
	if !transition.AllowsRole(actor.Role) {
		return models.NewTransitionError(
			models.ErrUnauthorized, ref, transition.Name, entity.Status,
			fmt.Sprintf("role %s is not allowed", actor.Role))
	}
	if transition.RequireJustification && payload.Justification == "" {
		return models.NewTransitionError(
			models.ErrValidationFailed, ref, transition.Name, entity.Status,
			"justification is required")
	}
	if transition.RequireAttachments && len(payload.Attachments) == 0 {
		return models.NewTransitionError(
			models.ErrValidationFailed, ref, transition.Name, entity.Status,
			"at least one attachment is required")
	}
	return nil
}

// SoftDelete marks the entity deleted. Only states the graph declares
// deletable qualify; signed or reviewed records are never destroyable.
func (e *Executor) SoftDelete(ctx context.Context, ref models.Ref, actor models.Actor) error {
	machine, err := e.registry.Machine(ref.Kind)
	if err != nil {
		return err
	}
	return e.runner.RunInTx(ctx, func(ctx context.Context) error {
		entity, err := e.entities.Get(ctx, ref)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", ref.Kind, ref.UUID, err)
		}
		if !machine.DeletableAt(entity.Status) {
			return models.NewTransitionError(
				models.ErrInvalidTransition, ref, "delete", entity.Status,
				"entity is not deletable from its current status")
		}
		if entity.OrgBinding != "" && actor.OrgBinding != "" && entity.OrgBinding != actor.OrgBinding {
			return models.NewTransitionError(
				models.ErrUnauthorized, ref, "delete", entity.Status,
				"entity belongs to another organization")
		}
		if err := e.entities.SoftDelete(ctx, ref, entity.Status, e.clock()); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.NewTransitionError(
					models.ErrInvalidTransition, ref, "delete", entity.Status,
					"entity was moved by a concurrent transition")
			}
			return fmt.Errorf("soft delete: %w", err)
		}
		return nil
	})
}

func (e *Executor) observe(ctx context.Context, ref models.Ref, transitionName string, actor models.Actor, err error) {
	outcome := "applied"
	if err != nil {
		if kind := models.ErrorKindOf(err); kind != "" {
			outcome = string(kind)
		} else {
			outcome = "storage_error"
		}
	}
	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(string(ref.Kind), transitionName, outcome).Inc()
	}
	if err != nil {
		e.logger.WarnContext(ctx, "transition rejected",
			"kind", ref.Kind,
			"entity", ref.UUID,
			"transition", transitionName,
			"role", actor.Role,
			"outcome", outcome,
			"error", err,
		)
		return
	}
	e.logger.InfoContext(ctx, "transition applied",
		"kind", ref.Kind,
		"entity", ref.UUID,
		"transition", transitionName,
		"role", actor.Role,
	)
}
