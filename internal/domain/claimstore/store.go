// Package claimstore defines the persistence contract for the webhook event
// claim ledger: the durable record of which event ids have been handled, are
// being handled, or failed and await a retry.
package claimstore

import (
	"context"
	"time"
)

// Status enumerates the lifecycle states of a claim record.
type Status string

const (
	// StatusProcessing marks a claim currently held by a worker.
	StatusProcessing Status = "processing"
	// StatusProcessed marks a fully handled event; terminal.
	StatusProcessed Status = "processed"
	// StatusFailed marks a failed attempt; re-claimable without delay.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Record is the durable state for one distinct event id ever delivered.
// Records are never deleted by this subsystem.
type Record struct {
	EventID              string
	EventType            string
	Status               Status
	ProcessingStartedAt  *time.Time
	UpdatedAt            time.Time
	LastError            string
	LastErrorAt          *time.Time
	CorrelationID        string
	ProcessingDurationMs *int64
	LiveMode             bool
	CreatedAt            time.Time
}

// NewClaim carries the fields recorded when an event id is first claimed.
type NewClaim struct {
	EventID       string
	EventType     string
	CorrelationID string
	LiveMode      bool
	StartedAt     time.Time
}

// Takeover carries the fields rewritten when a stale or failed claim is
// re-acquired. Last error state is always cleared on takeover.
type Takeover struct {
	CorrelationID string
	StartedAt     time.Time
}

// Precondition is the claim state a reader observed; a takeover applies only
// while the row still matches it. Status alone is not enough: a stale
// processing claim is retaken as processing, so only the processing start
// time distinguishes the pre-takeover row from the winner's rewrite.
type Precondition struct {
	Status              Status
	ProcessingStartedAt *time.Time
}

// Store abstracts the atomic ledger operations the claim coordinator relies
// on. Every method is a single atomic datastore call; no implementation may
// split a decision-affecting mutation across a read and a write.
type Store interface {
	// InsertIfAbsent creates a new record in StatusProcessing. It reports
	// inserted=false (with a nil error) when a record for the event id
	// already exists, so callers can continue on the read/compare path.
	InsertIfAbsent(ctx context.Context, claim NewClaim) (inserted bool, err error)

	// Read returns the record for the event id, or an error carrying
	// errs.CodeNotFound when no record exists.
	Read(ctx context.Context, eventID string) (Record, error)

	// CompareAndSetStatus transitions the record to StatusProcessing only if
	// its status and processing start time still equal the observed
	// precondition at update time. It reports updated=false (with a nil
	// error) when the precondition no longer holds.
	CompareAndSetStatus(ctx context.Context, eventID string, expected Precondition, takeover Takeover) (updated bool, err error)

	// MarkProcessed unconditionally records a successful terminal outcome.
	MarkProcessed(ctx context.Context, eventID string, duration time.Duration) error

	// MarkFailed unconditionally records a failed attempt, leaving the
	// record eligible for reclaim.
	MarkFailed(ctx context.Context, eventID string, errorMessage string) error
}
