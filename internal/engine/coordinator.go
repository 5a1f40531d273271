// Package engine implements the idempotent event-processing core: claim
// acquisition with stale-claim takeover, and terminal outcome recording.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/claimstore"
	"github.com/hostwell/paygate/internal/domain/event"
	"github.com/hostwell/paygate/internal/observability"
)

const (
	// DefaultStaleAfter is how long a processing claim may go without a
	// terminal outcome before another worker may take it over.
	DefaultStaleAfter = 10 * time.Minute

	// MinStaleAfter is the hard floor for the stale window. Values below it
	// risk false takeovers from clock skew or GC pauses and are clamped up.
	MinStaleAfter = 60 * time.Second
)

// Coordinator decides, per event id, whether an inbound delivery should be
// processed now, skipped as a duplicate, or taken over from a stalled worker.
// The decision state lives entirely in the claim ledger; no in-process locks
// are held across store round-trips.
type Coordinator struct {
	store claimstore.Store
	now   func() time.Time
}

// NewCoordinator constructs a coordinator over the provided ledger.
func NewCoordinator(store claimstore.Store) *Coordinator {
	coordinator := new(Coordinator)
	coordinator.store = store
	coordinator.now = func() time.Time { return time.Now().UTC() }
	return coordinator
}

// WithClock overrides the coordinator clock, primarily for testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	if clock == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	} else {
		c.now = clock
	}
	return c
}

// TryClaim attempts to acquire an exclusive claim on the event's id.
// duplicate=true means the event is already handled or actively claimed and
// the caller must not run the handler. Any returned error is a ledger
// failure; no claim decision was reached.
func (c *Coordinator) TryClaim(ctx context.Context, evt event.Event, correlationID string, staleAfter time.Duration) (duplicate bool, err error) {
	if err := evt.Validate(); err != nil {
		return false, err
	}
	staleAfter = clampStaleAfter(staleAfter)
	now := c.now()

	observability.Telemetry().IncCounter(observability.MetricEventsReceived, 1,
		map[string]string{"event_type": evt.Type})

	claim := claimstore.NewClaim{
		EventID:       evt.ID,
		EventType:     evt.Type,
		CorrelationID: correlationID,
		LiveMode:      evt.LiveMode,
		StartedAt:     now,
	}
	inserted, err := c.store.InsertIfAbsent(ctx, claim)
	if err != nil {
		return false, storeFailure("claim insert", evt.ID, err)
	}
	if inserted {
		return false, nil
	}

	record, err := c.store.Read(ctx, evt.ID)
	if err != nil {
		if errs.HasCode(err, errs.CodeNotFound) {
			// Records are never deleted, so a miss here should be impossible.
			// Handled defensively with a single re-insert attempt.
			inserted, err := c.store.InsertIfAbsent(ctx, claim)
			if err != nil {
				return false, storeFailure("claim re-insert", evt.ID, err)
			}
			if inserted {
				return false, nil
			}
			return c.markDuplicate(evt), nil
		}
		return false, storeFailure("claim read", evt.ID, err)
	}

	switch record.Status {
	case claimstore.StatusProcessed:
		return c.markDuplicate(evt), nil
	case claimstore.StatusProcessing:
		if !isStale(record, now, staleAfter) {
			return c.markDuplicate(evt), nil
		}
	case claimstore.StatusFailed:
		// Re-claimable without any staleness delay.
	default:
		return false, fmt.Errorf("claim %s: unknown status %q", evt.ID, record.Status)
	}

	updated, err := c.store.CompareAndSetStatus(ctx, evt.ID, claimstore.Precondition{
		Status:              record.Status,
		ProcessingStartedAt: record.ProcessingStartedAt,
	}, claimstore.Takeover{
		CorrelationID: correlationID,
		StartedAt:     now,
	})
	if err != nil {
		return false, storeFailure("claim takeover", evt.ID, err)
	}
	if !updated {
		// Another worker won the takeover race between our read and update.
		return c.markDuplicate(evt), nil
	}
	observability.Telemetry().IncCounter(observability.MetricClaimsReclaimed, 1,
		map[string]string{"event_type": evt.Type, "previous_status": string(record.Status)})
	observability.Log().Info("webhook claim taken over",
		observability.String("event_id", evt.ID),
		observability.String("previous_status", string(record.Status)),
		observability.String("correlation_id", correlationID))
	return false, nil
}

// storeFailure tags a ledger round-trip error so transport layers can
// distinguish store outages from handler failures.
func storeFailure(op, eventID string, cause error) error {
	return errs.New("engine/claim", errs.CodeStore,
		errs.WithMessage(op+" failed"),
		errs.WithEventID(eventID),
		errs.WithCause(cause))
}

func (c *Coordinator) markDuplicate(evt event.Event) bool {
	observability.Telemetry().IncCounter(observability.MetricEventsDuplicate, 1,
		map[string]string{"event_type": evt.Type})
	return true
}

// isStale determines liveness purely from elapsed wall-clock time; there are
// no worker liveness signals.
func isStale(record claimstore.Record, now time.Time, staleAfter time.Duration) bool {
	reference := record.UpdatedAt
	if record.ProcessingStartedAt != nil {
		reference = *record.ProcessingStartedAt
	}
	return now.Sub(reference) > staleAfter
}

func clampStaleAfter(staleAfter time.Duration) time.Duration {
	if staleAfter <= 0 {
		return DefaultStaleAfter
	}
	if staleAfter < MinStaleAfter {
		return MinStaleAfter
	}
	return staleAfter
}
