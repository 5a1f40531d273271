package engine

import (
	"context"
	"time"

	"github.com/hostwell/paygate/internal/domain/claimstore"
	"github.com/hostwell/paygate/internal/domain/event"
	"github.com/hostwell/paygate/internal/observability"
)

// Recorder writes terminal claim outcomes. Writes are best-effort: a failure
// to record the outcome is logged and counted, never propagated, since the
// claim row's existence already prevents duplicate processing.
type Recorder struct {
	store claimstore.Store
}

// NewRecorder constructs a recorder over the provided ledger.
func NewRecorder(store claimstore.Store) *Recorder {
	return &Recorder{store: store}
}

// MarkProcessed records a successful handler run and its duration.
func (r *Recorder) MarkProcessed(ctx context.Context, evt event.Event, correlationID string, duration time.Duration) {
	observability.Telemetry().IncCounter(observability.MetricEventsProcessed, 1,
		map[string]string{"event_type": evt.Type})
	observability.Telemetry().ObserveHistogram(observability.MetricProcessingSeconds, duration.Seconds(),
		map[string]string{"event_type": evt.Type})

	if err := r.store.MarkProcessed(ctx, evt.ID, duration); err != nil {
		r.dropOutcomeWrite("processed", evt, correlationID, err)
		return
	}
	observability.Log().Info("webhook event processed",
		observability.String("event_id", evt.ID),
		observability.String("event_type", evt.Type),
		observability.String("correlation_id", correlationID),
		observability.Field{Key: "duration_ms", Value: duration.Milliseconds()})
}

// MarkFailed records a failed handler run, leaving the claim re-claimable.
func (r *Recorder) MarkFailed(ctx context.Context, evt event.Event, correlationID string, cause error) {
	observability.Telemetry().IncCounter(observability.MetricEventsFailed, 1,
		map[string]string{"event_type": evt.Type})

	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := r.store.MarkFailed(ctx, evt.ID, message); err != nil {
		r.dropOutcomeWrite("failed", evt, correlationID, err)
		return
	}
	observability.Log().Error("webhook event failed",
		observability.String("event_id", evt.ID),
		observability.String("event_type", evt.Type),
		observability.String("correlation_id", correlationID),
		observability.Err(cause))
}

func (r *Recorder) dropOutcomeWrite(outcome string, evt event.Event, correlationID string, err error) {
	observability.Telemetry().IncCounter(observability.MetricOutcomeWriteDrops, 1,
		map[string]string{"outcome": outcome})
	observability.Log().Error("webhook outcome write dropped",
		observability.String("outcome", outcome),
		observability.String("event_id", evt.ID),
		observability.String("correlation_id", correlationID),
		observability.Err(err))
}
