// Package memory provides an in-memory claim ledger implementing the same
// atomic-operation contract as the PostgreSQL store. It backs tests and
// single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/claimstore"
)

// ClaimStore is a mutex-guarded map implementation of claimstore.Store.
// Each exported operation is atomic with respect to every other.
type ClaimStore struct {
	mu      sync.Mutex
	records map[string]claimstore.Record
	now     func() time.Time
}

// NewClaimStore creates an empty in-memory claim ledger.
func NewClaimStore() *ClaimStore {
	store := new(ClaimStore)
	store.records = make(map[string]claimstore.Record)
	store.now = func() time.Time { return time.Now().UTC() }
	return store
}

// WithClock overrides the store clock, primarily for staleness tests.
func (s *ClaimStore) WithClock(clock func() time.Time) *ClaimStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clock == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	} else {
		s.now = clock
	}
	return s
}

// InsertIfAbsent creates a processing record unless the event id is known.
func (s *ClaimStore) InsertIfAbsent(ctx context.Context, claim claimstore.NewClaim) (bool, error) {
	if err := ctxErr(ctx, "insert"); err != nil {
		return false, err
	}
	if claim.EventID == "" {
		return false, errs.New("claimstore/memory", errs.CodeInvalid, errs.WithMessage("event id required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[claim.EventID]; exists {
		return false, nil
	}
	startedAt := claim.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}
	started := startedAt
	s.records[claim.EventID] = claimstore.Record{
		EventID:             claim.EventID,
		EventType:           claim.EventType,
		Status:              claimstore.StatusProcessing,
		ProcessingStartedAt: &started,
		UpdatedAt:           startedAt,
		CorrelationID:       claim.CorrelationID,
		LiveMode:            claim.LiveMode,
		CreatedAt:           startedAt,
	}
	return true, nil
}

// Read returns a copy of the record for the event id.
func (s *ClaimStore) Read(ctx context.Context, eventID string) (claimstore.Record, error) {
	if err := ctxErr(ctx, "read"); err != nil {
		return claimstore.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return claimstore.Record{}, errs.New("claimstore/memory", errs.CodeNotFound,
			errs.WithMessage("claim record not found"), errs.WithEventID(eventID))
	}
	return cloneRecord(record), nil
}

// CompareAndSetStatus re-acquires the claim only when the observed status and
// processing start time still hold, mirroring a conditional UPDATE. The start
// time check is what lets exactly one of two racing stale-claim takeovers win.
func (s *ClaimStore) CompareAndSetStatus(ctx context.Context, eventID string, expected claimstore.Precondition, takeover claimstore.Takeover) (bool, error) {
	if err := ctxErr(ctx, "compare-and-set"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok || record.Status != expected.Status {
		return false, nil
	}
	if !timePtrEqual(record.ProcessingStartedAt, expected.ProcessingStartedAt) {
		return false, nil
	}
	startedAt := takeover.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}
	started := startedAt
	record.Status = claimstore.StatusProcessing
	record.ProcessingStartedAt = &started
	record.UpdatedAt = startedAt
	record.CorrelationID = takeover.CorrelationID
	record.LastError = ""
	record.LastErrorAt = nil
	s.records[eventID] = record
	return true, nil
}

// MarkProcessed records the successful terminal state.
func (s *ClaimStore) MarkProcessed(ctx context.Context, eventID string, duration time.Duration) error {
	if err := ctxErr(ctx, "mark processed"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return errs.New("claimstore/memory", errs.CodeNotFound,
			errs.WithMessage("claim record not found"), errs.WithEventID(eventID))
	}
	durationMs := duration.Milliseconds()
	record.Status = claimstore.StatusProcessed
	record.ProcessingDurationMs = &durationMs
	record.UpdatedAt = s.now()
	s.records[eventID] = record
	return nil
}

// MarkFailed records a failed attempt, keeping the record re-claimable.
func (s *ClaimStore) MarkFailed(ctx context.Context, eventID string, errorMessage string) error {
	if err := ctxErr(ctx, "mark failed"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return errs.New("claimstore/memory", errs.CodeNotFound,
			errs.WithMessage("claim record not found"), errs.WithEventID(eventID))
	}
	now := s.now()
	record.Status = claimstore.StatusFailed
	record.LastError = errorMessage
	record.LastErrorAt = &now
	record.UpdatedAt = now
	s.records[eventID] = record
	return nil
}

func cloneRecord(record claimstore.Record) claimstore.Record {
	clone := record
	if record.ProcessingStartedAt != nil {
		t := *record.ProcessingStartedAt
		clone.ProcessingStartedAt = &t
	}
	if record.LastErrorAt != nil {
		t := *record.LastErrorAt
		clone.LastErrorAt = &t
	}
	if record.ProcessingDurationMs != nil {
		d := *record.ProcessingDurationMs
		clone.ProcessingDurationMs = &d
	}
	return clone
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func ctxErr(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("memory claim store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}

var _ claimstore.Store = (*ClaimStore)(nil)
