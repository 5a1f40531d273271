// Package postgres provides the PostgreSQL-backed claim ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/claimstore"
)

// ClaimStore persists webhook event claims in the webhook_events table.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore constructs a ClaimStore backed by the provided pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

const (
	claimInsertSQL = `
INSERT INTO webhook_events (
    event_id,
    event_type,
    status,
    processing_started_at,
    updated_at,
    correlation_id,
    live_mode
)
VALUES ($1, $2, 'processing', $3, $3, $4, $5);
`

	claimReadSQL = `
SELECT
    event_id,
    event_type,
    status,
    processing_started_at,
    updated_at,
    last_error,
    last_error_at,
    correlation_id,
    processing_duration_ms,
    live_mode,
    created_at
FROM webhook_events
WHERE event_id = $1;
`

	// The WHERE clause is the load-bearing concurrency primitive. Status alone
	// cannot arbitrate a stale-processing takeover (processing -> processing),
	// so the observed processing_started_at is part of the predicate: the
	// winner rewrites it and the loser's condition no longer matches.
	claimTakeoverSQL = `
UPDATE webhook_events
SET status = 'processing',
    processing_started_at = $2,
    updated_at = $2,
    correlation_id = $3,
    last_error = NULL,
    last_error_at = NULL
WHERE event_id = $1
  AND status = $4
  AND processing_started_at IS NOT DISTINCT FROM $5;
`

	claimMarkProcessedSQL = `
UPDATE webhook_events
SET status = 'processed',
    processing_duration_ms = $2,
    updated_at = NOW()
WHERE event_id = $1;
`

	claimMarkFailedSQL = `
UPDATE webhook_events
SET status = 'failed',
    last_error = $2,
    last_error_at = NOW(),
    updated_at = NOW()
WHERE event_id = $1;
`
)

// InsertIfAbsent creates a processing record, reporting inserted=false when a
// record with the same event id already exists.
func (s *ClaimStore) InsertIfAbsent(ctx context.Context, claim claimstore.NewClaim) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("claim store: nil pool")
	}
	eventID := strings.TrimSpace(claim.EventID)
	if eventID == "" {
		return false, fmt.Errorf("claim store: event id required")
	}
	startedAt := claim.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, claimInsertSQL, eventID, claim.EventType, startedAt, claim.CorrelationID, claim.LiveMode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("claim store: insert: %w", err)
	}
	return true, nil
}

// Read returns the record for the event id.
func (s *ClaimStore) Read(ctx context.Context, eventID string) (claimstore.Record, error) {
	if s.pool == nil {
		return claimstore.Record{}, fmt.Errorf("claim store: nil pool")
	}
	row := s.pool.QueryRow(ctx, claimReadSQL, eventID)
	record, err := scanClaimRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return claimstore.Record{}, errs.New("claimstore/postgres", errs.CodeNotFound,
				errs.WithMessage("claim record not found"), errs.WithEventID(eventID))
		}
		return claimstore.Record{}, err
	}
	return record, nil
}

// CompareAndSetStatus performs the conditional takeover update.
func (s *ClaimStore) CompareAndSetStatus(ctx context.Context, eventID string, expected claimstore.Precondition, takeover claimstore.Takeover) (bool, error) {
	if s.pool == nil {
		return false, fmt.Errorf("claim store: nil pool")
	}
	if !expected.Status.Valid() {
		return false, fmt.Errorf("claim store: invalid expected status %q", expected.Status)
	}
	startedAt := takeover.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, claimTakeoverSQL,
		eventID, startedAt, takeover.CorrelationID, string(expected.Status), expected.ProcessingStartedAt)
	if err != nil {
		return false, fmt.Errorf("claim store: compare-and-set: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProcessed records the successful terminal outcome.
func (s *ClaimStore) MarkProcessed(ctx context.Context, eventID string, duration time.Duration) error {
	if s.pool == nil {
		return fmt.Errorf("claim store: nil pool")
	}
	tag, err := s.pool.Exec(ctx, claimMarkProcessedSQL, eventID, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("claim store: mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim store: mark processed: no rows updated")
	}
	return nil
}

// MarkFailed records a failed attempt.
func (s *ClaimStore) MarkFailed(ctx context.Context, eventID string, errorMessage string) error {
	if s.pool == nil {
		return fmt.Errorf("claim store: nil pool")
	}
	tag, err := s.pool.Exec(ctx, claimMarkFailedSQL, eventID, strings.TrimSpace(errorMessage))
	if err != nil {
		return fmt.Errorf("claim store: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim store: mark failed: no rows updated")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaimRecord(row rowScanner) (claimstore.Record, error) {
	var (
		record              claimstore.Record
		status              string
		processingStartedAt pgtype.Timestamptz
		lastError           pgtype.Text
		lastErrorAt         pgtype.Timestamptz
		durationMs          pgtype.Int8
	)
	if err := row.Scan(
		&record.EventID,
		&record.EventType,
		&status,
		&processingStartedAt,
		&record.UpdatedAt,
		&lastError,
		&lastErrorAt,
		&record.CorrelationID,
		&durationMs,
		&record.LiveMode,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return claimstore.Record{}, err
		}
		return claimstore.Record{}, fmt.Errorf("claim store: scan record: %w", err)
	}
	record.Status = claimstore.Status(status)
	if processingStartedAt.Valid {
		t := processingStartedAt.Time
		record.ProcessingStartedAt = &t
	}
	if lastError.Valid {
		record.LastError = lastError.String
	}
	if lastErrorAt.Valid {
		t := lastErrorAt.Time
		record.LastErrorAt = &t
	}
	if durationMs.Valid {
		d := durationMs.Int64
		record.ProcessingDurationMs = &d
	}
	return record, nil
}

var _ claimstore.Store = (*ClaimStore)(nil)
