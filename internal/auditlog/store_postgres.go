package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"mealflow/internal/workflow/models"
	"mealflow/pkg/sentinel"
	txcontext "mealflow/pkg/tx"
)

// PostgresStore persists audit entries in the audit_entries table, indexed by
// (kind, entity_uuid, created_at). Writes join the surrounding transaction
// when one is carried in the context, so a status update and its audit entry
// commit or roll back together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed audit store.
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

// Append inserts the entry; seq comes from the table's bigserial so insertion
// order is preserved across writers.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	attachments, err := json.Marshal(entry.Attachments)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal attachments: %w", err)
	}
	query := `
		INSERT INTO audit_entries (id, kind, entity_uuid, event_code, actor_id, actor_role, justification, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`
	err = s.q(ctx).QueryRowContext(ctx, query,
		entry.ID,
		string(entry.Kind),
		entry.EntityUUID,
		entry.EventCode,
		entry.ActorID,
		string(entry.ActorRole),
		entry.Justification,
		attachments,
		entry.CreatedAt,
	).Scan(&entry.Seq)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry, nil
}

const selectEntry = `
	SELECT id, kind, entity_uuid, event_code, actor_id, actor_role, justification, attachments, created_at, seq
	FROM audit_entries
`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var (
		entry       Entry
		kind        string
		role        string
		attachments []byte
	)
	err := row.Scan(
		&entry.ID,
		&kind,
		&entry.EntityUUID,
		&entry.EventCode,
		&entry.ActorID,
		&role,
		&entry.Justification,
		&attachments,
		&entry.CreatedAt,
		&entry.Seq,
	)
	if err != nil {
		return Entry{}, err
	}
	entry.Kind = models.EntityKind(kind)
	entry.ActorRole = models.Role(role)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &entry.Attachments); err != nil {
			return Entry{}, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return entry, nil
}

// MostRecent returns the entity's latest entry.
func (s *PostgresStore) MostRecent(ctx context.Context, kind models.EntityKind, entityUUID uuid.UUID) (Entry, error) {
	query := selectEntry + `
		WHERE kind = $1 AND entity_uuid = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`
	entry, err := scanEntry(s.q(ctx).QueryRowContext(ctx, query, string(kind), entityUUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, sentinel.ErrNotFound
		}
		return Entry{}, fmt.Errorf("query most recent audit entry: %w", err)
	}
	return entry, nil
}

// History streams the entity's entries in chronological order. The query runs
// when the sequence is ranged, so iteration is lazy and restartable.
func (s *PostgresStore) History(kind models.EntityKind, entityUUID uuid.UUID) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		ctx := context.Background()
		query := selectEntry + `
			WHERE kind = $1 AND entity_uuid = $2
			ORDER BY created_at ASC, seq ASC
		`
		rows, err := s.db.QueryContext(ctx, query, string(kind), entityUUID)
		if err != nil {
			yield(Entry{}, fmt.Errorf("query audit history: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				yield(Entry{}, fmt.Errorf("scan audit entry: %w", err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("iterate audit history: %w", err))
		}
	}
}
