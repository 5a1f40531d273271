package engine_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/claimstore"
	"github.com/hostwell/paygate/internal/domain/event"
	"github.com/hostwell/paygate/internal/engine"
	"github.com/hostwell/paygate/internal/infra/persistence/memory"
)

func testEvent(id string) event.Event {
	return event.Event{
		ID:      id,
		Type:    event.TypeInvoicePaid,
		Payload: []byte(`{"object":{"id":"in_1"}}`),
	}
}

func TestTryClaimFirstDeliveryWins(t *testing.T) {
	store := memory.NewClaimStore()
	coordinator := engine.NewCoordinator(store)

	duplicate, err := coordinator.TryClaim(context.Background(), testEvent("evt_1"), "corr-1", 0)
	require.NoError(t, err)
	require.False(t, duplicate)

	record, err := store.Read(context.Background(), "evt_1")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessing, record.Status)
	require.Equal(t, "corr-1", record.CorrelationID)
}

func TestTryClaimConcurrentDeliveriesAtMostOneActive(t *testing.T) {
	store := memory.NewClaimStore()
	coordinator := engine.NewCoordinator(store)

	const workers = 32
	var claimed atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			duplicate, err := coordinator.TryClaim(context.Background(), testEvent("evt_race"),
				fmt.Sprintf("corr-%d", worker), time.Hour)
			if err != nil {
				errCh <- err
				return
			}
			if !duplicate {
				claimed.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Equal(t, int64(1), claimed.Load())
}

func TestTryClaimDuplicateAfterSuccess(t *testing.T) {
	store := memory.NewClaimStore()
	coordinator := engine.NewCoordinator(store)
	ctx := context.Background()

	duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_done"), "corr-1", 0)
	require.NoError(t, err)
	require.False(t, duplicate)
	require.NoError(t, store.MarkProcessed(ctx, "evt_done", 40*time.Millisecond))

	duplicate, err = coordinator.TryClaim(ctx, testEvent("evt_done"), "corr-2", 0)
	require.NoError(t, err)
	require.True(t, duplicate)

	record, err := store.Read(ctx, "evt_done")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessed, record.Status)
	require.Equal(t, "corr-1", record.CorrelationID)
}

func TestTryClaimActiveClaimNotStale(t *testing.T) {
	store := memory.NewClaimStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := base
	coordinator := engine.NewCoordinator(store).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_live"), "corr-1", 10*time.Minute)
	require.NoError(t, err)
	require.False(t, duplicate)

	// Within the stale window the claim belongs to the first worker.
	clock = base.Add(9 * time.Minute)
	duplicate, err = coordinator.TryClaim(ctx, testEvent("evt_live"), "corr-2", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, duplicate)

	record, err := store.Read(ctx, "evt_live")
	require.NoError(t, err)
	require.Equal(t, "corr-1", record.CorrelationID)
}

func TestTryClaimStaleClaimTakenOver(t *testing.T) {
	store := memory.NewClaimStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := base
	coordinator := engine.NewCoordinator(store).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_stale"), "corr-1", 10*time.Minute)
	require.NoError(t, err)
	require.False(t, duplicate)

	clock = base.Add(11 * time.Minute)
	duplicate, err = coordinator.TryClaim(ctx, testEvent("evt_stale"), "corr-2", 10*time.Minute)
	require.NoError(t, err)
	require.False(t, duplicate)

	record, err := store.Read(ctx, "evt_stale")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessing, record.Status)
	require.Equal(t, "corr-2", record.CorrelationID)
	require.NotNil(t, record.ProcessingStartedAt)
	require.Equal(t, clock, *record.ProcessingStartedAt)
}

func TestTryClaimFailedClaimImmediatelyReclaimable(t *testing.T) {
	store := memory.NewClaimStore()
	coordinator := engine.NewCoordinator(store)
	ctx := context.Background()

	duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_retry"), "corr-1", time.Hour)
	require.NoError(t, err)
	require.False(t, duplicate)
	require.NoError(t, store.MarkFailed(ctx, "evt_retry", "handler exploded"))

	duplicate, err = coordinator.TryClaim(ctx, testEvent("evt_retry"), "corr-2", time.Hour)
	require.NoError(t, err)
	require.False(t, duplicate)

	record, err := store.Read(ctx, "evt_retry")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessing, record.Status)
	require.Equal(t, "corr-2", record.CorrelationID)
	require.Empty(t, record.LastError)
	require.Nil(t, record.LastErrorAt)
}

func TestTryClaimConcurrentReclaimOfFailedClaim(t *testing.T) {
	store := memory.NewClaimStore()
	coordinator := engine.NewCoordinator(store)
	ctx := context.Background()

	duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_reclaim"), "corr-0", time.Hour)
	require.NoError(t, err)
	require.False(t, duplicate)
	require.NoError(t, store.MarkFailed(ctx, "evt_reclaim", "transient"))

	const workers = 16
	var claimed atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_reclaim"),
				fmt.Sprintf("corr-%d", worker), time.Hour)
			if err != nil {
				errCh <- err
				return
			}
			if !duplicate {
				claimed.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Equal(t, int64(1), claimed.Load())
}

// gatedStore delays takeover updates until every racing worker has completed
// its read, forcing the read-then-update interleaving where all racers observe
// the same pre-takeover record.
type gatedStore struct {
	claimstore.Store
	reads sync.WaitGroup
}

func (g *gatedStore) Read(ctx context.Context, eventID string) (claimstore.Record, error) {
	record, err := g.Store.Read(ctx, eventID)
	g.reads.Done()
	return record, err
}

func (g *gatedStore) CompareAndSetStatus(ctx context.Context, eventID string, expected claimstore.Precondition, takeover claimstore.Takeover) (bool, error) {
	g.reads.Wait()
	return g.Store.CompareAndSetStatus(ctx, eventID, expected, takeover)
}

func TestTryClaimConcurrentTakeoverOfStaleClaim(t *testing.T) {
	store := &gatedStore{Store: memory.NewClaimStore()}
	coordinator := engine.NewCoordinator(store)
	ctx := context.Background()

	// Seed a processing claim whose start time is far past any stale window.
	inserted, err := store.InsertIfAbsent(ctx, claimstore.NewClaim{
		EventID:       "evt_stale_race",
		EventType:     event.TypeInvoicePaid,
		CorrelationID: "corr-0",
		StartedAt:     time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	const workers = 2
	store.reads.Add(workers)
	var claimed atomic.Int64
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_stale_race"),
				fmt.Sprintf("corr-%d", worker+1), 10*time.Minute)
			if err != nil {
				errCh <- err
				return
			}
			if !duplicate {
				claimed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Equal(t, int64(1), claimed.Load())
}

func TestTryClaimRejectsInvalidEvent(t *testing.T) {
	coordinator := engine.NewCoordinator(memory.NewClaimStore())

	_, err := coordinator.TryClaim(context.Background(), event.Event{Type: event.TypeInvoicePaid}, "corr-1", 0)
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestTryClaimPropagatesStoreFailure(t *testing.T) {
	store := &failingStore{err: fmt.Errorf("connection refused")}
	coordinator := engine.NewCoordinator(store)

	_, err := coordinator.TryClaim(context.Background(), testEvent("evt_down"), "corr-1", 0)
	require.Error(t, err)
	require.ErrorContains(t, err, "connection refused")
	require.True(t, errs.HasCode(err, errs.CodeStore))
}

func TestStaleWindowClamping(t *testing.T) {
	store := memory.NewClaimStore()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := base
	coordinator := engine.NewCoordinator(store).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	// A 1s window is clamped to the 60s floor: 30s elapsed is not stale.
	duplicate, err := coordinator.TryClaim(ctx, testEvent("evt_clamp"), "corr-1", time.Second)
	require.NoError(t, err)
	require.False(t, duplicate)

	clock = base.Add(30 * time.Second)
	duplicate, err = coordinator.TryClaim(ctx, testEvent("evt_clamp"), "corr-2", time.Second)
	require.NoError(t, err)
	require.True(t, duplicate)

	// Past the floor the takeover proceeds.
	clock = base.Add(61 * time.Second)
	duplicate, err = coordinator.TryClaim(ctx, testEvent("evt_clamp"), "corr-3", time.Second)
	require.NoError(t, err)
	require.False(t, duplicate)
}

type failingStore struct {
	err error
}

func (f *failingStore) InsertIfAbsent(context.Context, claimstore.NewClaim) (bool, error) {
	return false, f.err
}

func (f *failingStore) Read(context.Context, string) (claimstore.Record, error) {
	return claimstore.Record{}, f.err
}

func (f *failingStore) CompareAndSetStatus(context.Context, string, claimstore.Precondition, claimstore.Takeover) (bool, error) {
	return false, f.err
}

func (f *failingStore) MarkProcessed(context.Context, string, time.Duration) error { return f.err }

func (f *failingStore) MarkFailed(context.Context, string, string) error { return f.err }

var _ claimstore.Store = (*failingStore)(nil)
