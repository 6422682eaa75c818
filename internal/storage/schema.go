package storage

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. The vector column is declared
// without a fixed dimension because the fallback descriptor is shorter than
// the primary encoder's output; format mixing is prevented in the matcher,
// not the database.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS persons (
		register_number      TEXT PRIMARY KEY,
		name                 TEXT NOT NULL,
		active               BOOLEAN NOT NULL DEFAULT TRUE,
		embedding            vector,
		embedding_format     TEXT,
		embedding_updated_at TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS attendance_outcomes (
		id                  UUID PRIMARY KEY,
		register_number     TEXT NOT NULL,
		day                 DATE NOT NULL,
		captured_at         TIMESTAMPTZ NOT NULL,
		status              TEXT NOT NULL,
		verification_method TEXT NOT NULL,
		match_confidence    REAL NOT NULL DEFAULT 0,
		liveness_confidence REAL NOT NULL DEFAULT 0,
		review_state        TEXT NOT NULL,
		reviewed_by         TEXT,
		review_notes        TEXT,
		notified            BOOLEAN NOT NULL DEFAULT FALSE,
		capture_key         TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// One outcome per person per day. The placeholder owner for
	// unidentified captures is exempt; several unknown visitors on the
	// same day are distinct records.
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_outcomes_person_day
		ON attendance_outcomes (register_number, day)
		WHERE register_number <> 'UNKNOWN'`,

	`CREATE INDEX IF NOT EXISTS attendance_outcomes_day_idx ON attendance_outcomes (day)`,

	`CREATE TABLE IF NOT EXISTS pending_reviews (
		id             UUID PRIMARY KEY,
		outcome_id     UUID NOT NULL REFERENCES attendance_outcomes(id),
		best_guess     TEXT NOT NULL,
		confidence     REAL NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT '',
		resolution     TEXT,
		resolved_by    TEXT,
		resolved_notes TEXT,
		resolved_at    TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS pending_reviews_open_idx ON pending_reviews (created_at) WHERE resolution IS NULL`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq        BIGSERIAL PRIMARY KEY,
		outcome_id UUID,
		action     TEXT NOT NULL,
		actor      TEXT NOT NULL,
		details    JSONB NOT NULL DEFAULT '{}',
		prev_hash  TEXT NOT NULL,
		entry_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
