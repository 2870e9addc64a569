package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
	txcontext "mealflow/pkg/tx"
)

// PostgresStore persists entities in the workflow_entities table. Status swaps
// are optimistic: the UPDATE carries the expected status in its WHERE clause,
// and zero affected rows means a concurrent transition won.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed entity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Create inserts a new entity.
func (s *PostgresStore) Create(ctx context.Context, entity models.Entity) (models.Entity, error) {
	query := `
		INSERT INTO workflow_entities (uuid, kind, status, org_binding, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		entity.UUID,
		string(entity.Kind),
		string(entity.Status),
		entity.OrgBinding,
		entity.CreatedAt,
	)
	if err != nil {
		return models.Entity{}, fmt.Errorf("insert entity: %w", err)
	}
	return entity, nil
}

const selectEntity = `
	SELECT uuid, kind, status, org_binding, created_at, last_transition_at, deleted_at
	FROM workflow_entities
`

func scanEntity(row interface{ Scan(...any) error }) (models.Entity, error) {
	var (
		entity models.Entity
		kind   string
		status string
	)
	err := row.Scan(
		&entity.UUID,
		&kind,
		&status,
		&entity.OrgBinding,
		&entity.CreatedAt,
		&entity.LastTransitionAt,
		&entity.DeletedAt,
	)
	if err != nil {
		return models.Entity{}, err
	}
	entity.Kind = models.EntityKind(kind)
	entity.Status = models.State(status)
	return entity, nil
}

// Get loads one entity. Soft-deleted entities are not found.
func (s *PostgresStore) Get(ctx context.Context, ref models.Ref) (models.Entity, error) {
	query := selectEntity + ` WHERE kind = $1 AND uuid = $2 AND deleted_at IS NULL`
	entity, err := scanEntity(s.q(ctx).QueryRowContext(ctx, query, string(ref.Kind), ref.UUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Entity{}, sentinel.ErrNotFound
		}
		return models.Entity{}, fmt.Errorf("query entity: %w", err)
	}
	return entity, nil
}

// UpdateStatus performs the optimistic swap and refreshes last_transition_at.
func (s *PostgresStore) UpdateStatus(ctx context.Context, ref models.Ref, expected, next models.State, at time.Time) (models.Entity, error) {
	query := `
		UPDATE workflow_entities
		SET status = $4, last_transition_at = $5
		WHERE kind = $1 AND uuid = $2 AND status = $3 AND deleted_at IS NULL
		RETURNING uuid, kind, status, org_binding, created_at, last_transition_at, deleted_at
	`
	entity, err := scanEntity(s.q(ctx).QueryRowContext(ctx, query,
		string(ref.Kind), ref.UUID, string(expected), string(next), at))
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the entity is gone or its status moved underneath us.
			if _, getErr := s.Get(ctx, ref); getErr != nil {
				return models.Entity{}, getErr
			}
			return models.Entity{}, sentinel.ErrConflict
		}
		return models.Entity{}, fmt.Errorf("update entity status: %w", err)
	}
	return entity, nil
}

// Revert restores a prior status and last transition time. It only matters
// when no ambient transaction wraps the swap; inside one the rollback wins.
func (s *PostgresStore) Revert(ctx context.Context, ref models.Ref, expected models.State, prior models.Entity) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE workflow_entities
		SET status = $4, last_transition_at = $5
		WHERE kind = $1 AND uuid = $2 AND status = $3 AND deleted_at IS NULL
	`, string(ref.Kind), ref.UUID, string(expected), string(prior.Status), prior.LastTransitionAt)
	if err != nil {
		return fmt.Errorf("revert entity status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revert entity status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// SoftDelete marks the entity deleted if its status is still the expected one.
func (s *PostgresStore) SoftDelete(ctx context.Context, ref models.Ref, expected models.State, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE workflow_entities
		SET deleted_at = $4
		WHERE kind = $1 AND uuid = $2 AND status = $3 AND deleted_at IS NULL
	`, string(ref.Kind), ref.UUID, string(expected), at)
	if err != nil {
		return fmt.Errorf("soft delete entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete entity: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, ref); getErr != nil {
			return getErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

// filterClauses translates the supported pass-through filters into WHERE
// fragments. Unknown keys exclude nothing; the owning domain applies them on
// its own tables.
func filterClauses(q Query, args []any) (string, []any) {
	clause := ""
	if q.OrgBinding != "" {
		args = append(args, q.OrgBinding)
		clause += fmt.Sprintf(" AND org_binding = $%d", len(args))
	}
	if v, ok := q.Filters["org"]; ok {
		args = append(args, v)
		clause += fmt.Sprintf(" AND org_binding = $%d", len(args))
	}
	if v, ok := q.Filters["created_from"]; ok {
		args = append(args, v)
		clause += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if v, ok := q.Filters["created_to"]; ok {
		args = append(args, v)
		clause += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	return clause, args
}

func statesParam(states []models.State) pq.StringArray {
	out := make(pq.StringArray, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// CountByStates counts matching entities.
func (s *PostgresStore) CountByStates(ctx context.Context, q Query) (int, error) {
	args := []any{string(q.Kind), statesParam(q.States)}
	clause, args := filterClauses(q, args)
	query := `
		SELECT COUNT(*)
		FROM workflow_entities
		WHERE kind = $1 AND status = ANY($2) AND deleted_at IS NULL
	` + clause
	var total int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return total, nil
}

// ListByStates returns one ordered page, most recently moved first. Entities
// never moved order by creation time via COALESCE on the denormalized column.
func (s *PostgresStore) ListByStates(ctx context.Context, q Query) ([]models.Entity, error) {
	args := []any{string(q.Kind), statesParam(q.States)}
	clause, args := filterClauses(q, args)
	args = append(args, q.Limit, q.Offset)
	query := selectEntity + `
		WHERE kind = $1 AND status = ANY($2) AND deleted_at IS NULL
	` + clause + fmt.Sprintf(`
		ORDER BY COALESCE(last_transition_at, created_at) DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}
