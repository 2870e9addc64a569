package correction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
	txcontext "mealflow/pkg/tx"
)

// PostgresStore persists correction flags and reviewer answers. Writes join
// the surrounding transaction so flag changes commit with the transition that
// caused them.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed correction store.
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

// Save upserts the open correction request of the entity.
func (s *PostgresStore) Save(ctx context.Context, flags ReviewFlags) error {
	query := `
		INSERT INTO correction_flags (kind, entity_uuid, approved_fields, flagged_fields, round, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, entity_uuid) DO UPDATE SET
			approved_fields = EXCLUDED.approved_fields,
			flagged_fields = EXCLUDED.flagged_fields,
			round = EXCLUDED.round,
			requested_at = EXCLUDED.requested_at
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		string(flags.Ref.Kind),
		flags.Ref.UUID,
		pq.Array(flags.ApprovedFields),
		pq.Array(flags.FlaggedFields),
		flags.Round,
		flags.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("save correction flags: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO correction_rounds (kind, entity_uuid, round)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, entity_uuid, round) DO NOTHING
	`, string(flags.Ref.Kind), flags.Ref.UUID, flags.Round)
	if err != nil {
		return fmt.Errorf("record correction round: %w", err)
	}
	return nil
}

// Get returns the open correction request.
func (s *PostgresStore) Get(ctx context.Context, ref models.Ref) (ReviewFlags, error) {
	flags := ReviewFlags{Ref: ref}
	var approved, flagged pq.StringArray
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT approved_fields, flagged_fields, round, requested_at
		FROM correction_flags
		WHERE kind = $1 AND entity_uuid = $2
	`, string(ref.Kind), ref.UUID).Scan(&approved, &flagged, &flags.Round, &flags.RequestedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ReviewFlags{}, sentinel.ErrNotFound
		}
		return ReviewFlags{}, fmt.Errorf("query correction flags: %w", err)
	}
	flags.ApprovedFields = []string(approved)
	flags.FlaggedFields = []string(flagged)
	return flags, nil
}

// Clear closes the open correction request. The rounds counter lives in its
// own table and survives.
func (s *PostgresStore) Clear(ctx context.Context, ref models.Ref) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM correction_flags WHERE kind = $1 AND entity_uuid = $2`,
		string(ref.Kind), ref.UUID)
	if err != nil {
		return fmt.Errorf("clear correction flags: %w", err)
	}
	return nil
}

// Rounds returns the highest correction round the entity has reached.
func (s *PostgresStore) Rounds(ctx context.Context, ref models.Ref) (int, error) {
	var rounds sql.NullInt64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT MAX(round) FROM correction_rounds WHERE kind = $1 AND entity_uuid = $2
	`, string(ref.Kind), ref.UUID).Scan(&rounds)
	if err != nil {
		return 0, fmt.Errorf("query correction rounds: %w", err)
	}
	if !rounds.Valid {
		return 0, nil
	}
	return int(rounds.Int64), nil
}

// MergeFields merges corrected values into the record_fields projection.
func (s *PostgresStore) MergeFields(ctx context.Context, ref models.Ref, values map[string]string) error {
	for field, value := range values {
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO record_fields (kind, entity_uuid, field, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (kind, entity_uuid, field) DO UPDATE SET value = EXCLUDED.value
		`, string(ref.Kind), ref.UUID, field, value)
		if err != nil {
			return fmt.Errorf("merge field %q: %w", field, err)
		}
	}
	return nil
}

// SetAnswer records the reviewer's verdict for one sub-part.
func (s *PostgresStore) SetAnswer(ctx context.Context, ref models.Ref, field string, verdict Verdict) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO reviewer_answers (kind, entity_uuid, field, verdict)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, entity_uuid, field) DO UPDATE SET verdict = EXCLUDED.verdict
	`, string(ref.Kind), ref.UUID, field, string(verdict))
	if err != nil {
		return fmt.Errorf("set reviewer answer: %w", err)
	}
	return nil
}

// ClearAnswers removes verdicts for the given sub-parts only.
func (s *PostgresStore) ClearAnswers(ctx context.Context, ref models.Ref, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM reviewer_answers
		WHERE kind = $1 AND entity_uuid = $2 AND field = ANY($3)
	`, string(ref.Kind), ref.UUID, pq.Array(fields))
	if err != nil {
		return fmt.Errorf("clear reviewer answers: %w", err)
	}
	return nil
}

// Answers returns the recorded verdicts.
func (s *PostgresStore) Answers(ctx context.Context, ref models.Ref) (map[string]Verdict, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT field, verdict FROM reviewer_answers WHERE kind = $1 AND entity_uuid = $2
	`, string(ref.Kind), ref.UUID)
	if err != nil {
		return nil, fmt.Errorf("query reviewer answers: %w", err)
	}
	defer rows.Close()

	answers := make(map[string]Verdict)
	for rows.Next() {
		var field, verdict string
		if err := rows.Scan(&field, &verdict); err != nil {
			return nil, fmt.Errorf("scan reviewer answer: %w", err)
		}
		answers[field] = Verdict(verdict)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewer answers: %w", err)
	}
	return answers, nil
}
