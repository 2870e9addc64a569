package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mealflow/pkg/sentinel"
)

// Store is the queue the dispatcher drains.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Task, error)
	MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Handler processes one task. Handlers talk to external services (report
// renderer, notifier); errors leave the task pending for the next sweep.
type Handler func(ctx context.Context, task Task) error

// Dispatcher polls the outbox and hands tasks to the handler. It keeps
// background processing testable without wiring queue implementations.
type Dispatcher struct {
	store    Store
	handler  Handler
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// NewDispatcher constructs a dispatcher polling every interval.
func NewDispatcher(store Store, handler Handler, logger *slog.Logger, interval time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{store: store, handler: handler, logger: logger, interval: interval, batch: 50}
}

// Run sweeps until the context is cancelled or the store reports
// sentinel.ErrClosed.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.sweep(ctx); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) error {
	tasks, err := d.store.Pending(ctx, d.batch)
	if errors.Is(err, sentinel.ErrClosed) {
		return err
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "outbox sweep failed", "error", err)
		return nil
	}
	for _, task := range tasks {
		if err := d.handler(ctx, task); err != nil {
			d.logger.WarnContext(ctx, "outbox task failed, will retry",
				"task", task.ID, "type", task.TaskType, "error", err)
			continue
		}
		if err := d.store.MarkDone(ctx, task.ID, time.Now()); err != nil {
			d.logger.ErrorContext(ctx, "mark outbox task done failed",
				"task", task.ID, "error", err)
		}
	}
	return nil
}
