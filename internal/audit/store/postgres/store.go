package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"medigate/internal/audit"
	id "medigate/pkg/domain"
)

// Store is the PostgreSQL audit store. The table is insert-only; no update
// or delete statements exist in this package.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL audit store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is applied by deployment migrations; kept here as the reference DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id          UUID PRIMARY KEY,
    subject_id  UUID,
    email       TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL DEFAULT '',
    source_addr TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    message     TEXT NOT NULL DEFAULT '',
    detail      JSONB,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_created_at_idx ON audit_entries (created_at DESC);
`

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_entries
			(id, subject_id, email, role, source_addr, action, outcome, message, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID,
		nullableSubject(entry.Subject),
		entry.Email,
		string(entry.Role),
		entry.SourceAddr,
		entry.Action,
		string(entry.Outcome),
		entry.Message,
		entry.Detail,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the most recent entries, newest first. Queries scan a
// recency-bounded window by design; see audit.Recorder.Query.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, email, role, source_addr, action, outcome, message, detail, created_at
		FROM audit_entries
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry   audit.Entry
			subject pgtype.UUID
			role    string
			outcome string
		)
		if err := rows.Scan(
			&entry.ID,
			&subject,
			&entry.Email,
			&role,
			&entry.SourceAddr,
			&entry.Action,
			&outcome,
			&entry.Message,
			&entry.Detail,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if subject.Valid {
			entry.Subject = id.UserID(subject.Bytes)
		}
		entry.Role = id.Role(role)
		entry.Outcome = audit.Outcome(outcome)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullableSubject(subject id.UserID) pgtype.UUID {
	return pgtype.UUID{Bytes: [16]byte(subject), Valid: !subject.IsNil()}
}
