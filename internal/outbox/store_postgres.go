package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
	txcontext "mealflow/pkg/tx"
)

// PostgresStore persists queued tasks in the outbox table. Enqueue joins the
// surrounding transaction, so a task is only visible once the transition that
// produced it committed.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed outbox.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Enqueue inserts a task.
func (s *PostgresStore) Enqueue(ctx context.Context, task Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	query := `
		INSERT INTO outbox (id, kind, entity_uuid, task_type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		task.ID,
		string(task.Kind),
		task.EntityUUID,
		string(task.TaskType),
		task.Detail,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox task: %w", err)
	}
	return nil
}

// Pending returns up to limit undone tasks in enqueue order.
func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Task, error) {
	query := `
		SELECT id, kind, entity_uuid, task_type, detail, created_at
		FROM outbox
		WHERE done_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			task     Task
			kind     string
			taskType string
		)
		if err := rows.Scan(&task.ID, &kind, &task.EntityUUID, &taskType, &task.Detail, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox task: %w", err)
		}
		task.Kind = models.EntityKind(kind)
		task.TaskType = TaskType(taskType)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox tasks: %w", err)
	}
	return tasks, nil
}

// MarkDone stamps a task as processed.
func (s *PostgresStore) MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE outbox SET done_at = $2 WHERE id = $1 AND done_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark outbox task done: %w", err)
	}
	return nil
}
