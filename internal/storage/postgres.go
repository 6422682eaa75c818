package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Persons ---

func (s *PostgresStore) CreatePerson(ctx context.Context, registerNumber, name string) (*models.Person, error) {
	p := &models.Person{
		RegisterNumber: registerNumber,
		Name:           name,
		Active:         true,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (register_number, name) VALUES ($1, $2) RETURNING created_at, updated_at`,
		p.RegisterNumber, p.Name,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("person %s: %w", registerNumber, ErrDuplicatePerson)
		}
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, registerNumber string) (*models.Person, error) {
	p := &models.Person{}
	var vec *pgvector.Vector
	var format *string
	var embUpdated *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT register_number, name, active, embedding, embedding_format, embedding_updated_at, created_at, updated_at
		 FROM persons WHERE register_number = $1`, registerNumber,
	).Scan(&p.RegisterNumber, &p.Name, &p.Active, &vec, &format, &embUpdated, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}

	if vec != nil && format != nil && embUpdated != nil {
		p.Embedding = &models.IdentityEmbedding{
			Vector:    vec.Slice(),
			Format:    models.EmbeddingFormat(*format),
			UpdatedAt: *embUpdated,
		}
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT register_number, name, active, embedding_format, embedding_updated_at, created_at, updated_at
		 FROM persons ORDER BY register_number`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		var format *string
		var embUpdated *time.Time
		if err := rows.Scan(&p.RegisterNumber, &p.Name, &p.Active, &format, &embUpdated, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		if format != nil && embUpdated != nil {
			p.Embedding = &models.IdentityEmbedding{Format: models.EmbeddingFormat(*format), UpdatedAt: *embUpdated}
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// ListActiveEnrolled returns active persons with their embedding vectors
// loaded, for the 1:N identification scan.
func (s *PostgresStore) ListActiveEnrolled(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT register_number, name, embedding, embedding_format, embedding_updated_at
		 FROM persons WHERE active AND embedding IS NOT NULL ORDER BY register_number`)
	if err != nil {
		return nil, fmt.Errorf("list enrolled persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		var vec pgvector.Vector
		var format string
		var embUpdated time.Time
		if err := rows.Scan(&p.RegisterNumber, &p.Name, &vec, &format, &embUpdated); err != nil {
			return nil, fmt.Errorf("scan enrolled person: %w", err)
		}
		p.Active = true
		p.Embedding = &models.IdentityEmbedding{
			Vector:    vec.Slice(),
			Format:    models.EmbeddingFormat(format),
			UpdatedAt: embUpdated,
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// SetEmbedding replaces a person's stored embedding. The advisory lock on
// the register number serializes concurrent enrollment attempts from
// parallel captures; last writer wins, merges never happen.
func (s *PostgresStore) SetEmbedding(ctx context.Context, registerNumber string, emb models.IdentityEmbedding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enrollment: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, registerNumber); err != nil {
		return fmt.Errorf("lock enrollment: %w", err)
	}

	vec := pgvector.NewVector(emb.Vector)
	tag, err := tx.Exec(ctx,
		`UPDATE persons SET embedding = $1, embedding_format = $2, embedding_updated_at = now(), updated_at = now()
		 WHERE register_number = $3`,
		vec, string(emb.Format), registerNumber)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %s: %w", registerNumber, ErrNotFound)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) SetPersonActive(ctx context.Context, registerNumber string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET active = $1, updated_at = now() WHERE register_number = $2`,
		active, registerNumber)
	if err != nil {
		return fmt.Errorf("set person active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %s: %w", registerNumber, ErrNotFound)
	}
	return nil
}

// --- Outcomes ---

// CreateOutcome inserts the outcome and, when review is non-nil, its
// pending review in one transaction. ON CONFLICT DO NOTHING on the
// (register_number, day) constraint turns a lost race into
// ErrDuplicateOutcome instead of a second row.
func (s *PostgresStore) CreateOutcome(ctx context.Context, o *models.AttendanceOutcome, review *models.PendingReview) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create outcome: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO attendance_outcomes
			(id, register_number, day, captured_at, status, verification_method,
			 match_confidence, liveness_confidence, review_state, notified, capture_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (register_number, day) WHERE register_number <> 'UNKNOWN' DO NOTHING
		 RETURNING created_at, updated_at`,
		o.ID, o.RegisterNumber, o.Day, o.CapturedAt, o.Status, o.Method,
		o.MatchConfidence, o.LivenessConfidence, o.ReviewState, o.Notified, o.CaptureKey,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("%s on %s: %w", o.RegisterNumber, o.Day.Format("2006-01-02"), ErrDuplicateOutcome)
		}
		return fmt.Errorf("create outcome: %w", err)
	}

	if review != nil {
		err = tx.QueryRow(ctx,
			`INSERT INTO pending_reviews (id, outcome_id, best_guess, confidence, notes)
			 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
			review.ID, review.OutcomeID, review.BestGuess, review.Confidence, review.Notes,
		).Scan(&review.CreatedAt)
		if err != nil {
			return fmt.Errorf("create pending review: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const outcomeColumns = `id, register_number, day, captured_at, status, verification_method,
	match_confidence, liveness_confidence, review_state, reviewed_by, review_notes,
	notified, capture_key, created_at, updated_at`

func scanOutcome(row pgx.Row) (*models.AttendanceOutcome, error) {
	o := &models.AttendanceOutcome{}
	err := row.Scan(&o.ID, &o.RegisterNumber, &o.Day, &o.CapturedAt, &o.Status, &o.Method,
		&o.MatchConfidence, &o.LivenessConfidence, &o.ReviewState, &o.ReviewedBy, &o.ReviewNotes,
		&o.Notified, &o.CaptureKey, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id uuid.UUID) (*models.AttendanceOutcome, error) {
	o, err := scanOutcome(s.pool.QueryRow(ctx,
		`SELECT `+outcomeColumns+` FROM attendance_outcomes WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOutcomeForDay(ctx context.Context, registerNumber string, day time.Time) (*models.AttendanceOutcome, error) {
	o, err := scanOutcome(s.pool.QueryRow(ctx,
		`SELECT `+outcomeColumns+` FROM attendance_outcomes WHERE register_number = $1 AND day = $2`,
		registerNumber, day))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get outcome for day: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOutcomesForDay(ctx context.Context, day time.Time) ([]models.AttendanceOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+outcomeColumns+` FROM attendance_outcomes WHERE day = $1 ORDER BY captured_at`, day)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.AttendanceOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE attendance_outcomes SET notified = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// --- Pending reviews ---

const reviewColumns = `id, outcome_id, best_guess, confidence, notes,
	resolution, resolved_by, resolved_notes, resolved_at, created_at`

func scanReview(row pgx.Row) (*models.PendingReview, error) {
	r := &models.PendingReview{}
	err := row.Scan(&r.ID, &r.OutcomeID, &r.BestGuess, &r.Confidence, &r.Notes,
		&r.Resolution, &r.ResolvedBy, &r.ResolvedNotes, &r.ResolvedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) GetReview(ctx context.Context, id uuid.UUID) (*models.PendingReview, error) {
	r, err := scanReview(s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM pending_reviews WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListOpenReviews(ctx context.Context) ([]models.PendingReview, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reviewColumns+` FROM pending_reviews WHERE resolution IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list open reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.PendingReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, nil
}

// ReviewUpdate describes the one-shot resolution applied to a review and
// its parent outcome in the same transaction.
type ReviewUpdate struct {
	Resolution     models.ReviewResolution
	ResolvedBy     string
	Notes          string
	NewStatus      models.AttendanceStatus
	NewReviewState models.ReviewState
	// NewRegister reassigns the outcome owner (approving an unidentified
	// capture). Empty keeps the current owner.
	NewRegister string
}

// ResolveReview applies the resolution atomically. The review row is
// locked first; a review that already carries a resolution returns
// ErrAlreadyResolved. Reassigning the outcome to a person who already has
// an outcome that day returns ErrDuplicateOutcome.
func (s *PostgresStore) ResolveReview(ctx context.Context, id uuid.UUID, upd ReviewUpdate) (*models.PendingReview, *models.AttendanceOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := scanReview(tx.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM pending_reviews WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, fmt.Errorf("review %s: %w", id, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("lock review: %w", err)
	}
	if r.Resolved() {
		return nil, nil, fmt.Errorf("review %s: %w", id, ErrAlreadyResolved)
	}

	now := time.Now().UTC()
	r.Resolution = &upd.Resolution
	r.ResolvedBy = &upd.ResolvedBy
	r.ResolvedNotes = &upd.Notes
	r.ResolvedAt = &now

	if _, err := tx.Exec(ctx,
		`UPDATE pending_reviews SET resolution = $1, resolved_by = $2, resolved_notes = $3, resolved_at = $4 WHERE id = $5`,
		*r.Resolution, *r.ResolvedBy, *r.ResolvedNotes, *r.ResolvedAt, r.ID); err != nil {
		return nil, nil, fmt.Errorf("update review: %w", err)
	}

	query := `UPDATE attendance_outcomes
		SET status = $1, review_state = $2, reviewed_by = $3, review_notes = $4, updated_at = now()`
	args := []interface{}{upd.NewStatus, upd.NewReviewState, upd.ResolvedBy, upd.Notes}
	if upd.NewRegister != "" {
		query += `, register_number = $5 WHERE id = $6`
		args = append(args, upd.NewRegister, r.OutcomeID)
	} else {
		query += ` WHERE id = $5`
		args = append(args, r.OutcomeID)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%s already has an outcome: %w", upd.NewRegister, ErrDuplicateOutcome)
		}
		return nil, nil, fmt.Errorf("update outcome: %w", err)
	}

	o, err := scanOutcome(tx.QueryRow(ctx,
		`SELECT `+outcomeColumns+` FROM attendance_outcomes WHERE id = $1`, r.OutcomeID))
	if err != nil {
		return nil, nil, fmt.Errorf("reload outcome: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit resolve: %w", err)
	}
	return r, o, nil
}

// --- Ledger ---

func (s *PostgresStore) AppendLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ledger_entries (outcome_id, action, actor, details, prev_hash, entry_hash)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq, created_at`,
		e.OutcomeID, e.Action, e.Actor, e.Details, e.PrevHash, e.EntryHash,
	).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastLedgerHash(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT entry_hash FROM ledger_entries ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("last ledger hash: %w", err)
	}
	return hash, nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, outcome_id, action, actor, details, prev_hash, entry_hash, created_at
		 FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.Seq, &e.OutcomeID, &e.Action, &e.Actor, &e.Details, &e.PrevHash, &e.EntryHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
