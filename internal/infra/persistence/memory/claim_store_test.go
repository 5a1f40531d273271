package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hostwell/paygate/errs"
	"github.com/hostwell/paygate/internal/domain/claimstore"
	"github.com/hostwell/paygate/internal/infra/persistence/memory"
)

func newClaim(id string) claimstore.NewClaim {
	return claimstore.NewClaim{
		EventID:       id,
		EventType:     "invoice.paid",
		CorrelationID: "corr-1",
		LiveMode:      true,
	}
}

func TestInsertIfAbsentFirstWinsSecondNoOps(t *testing.T) {
	store := memory.NewClaimStore()
	ctx := context.Background()

	inserted, err := store.InsertIfAbsent(ctx, newClaim("evt_1"))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertIfAbsent(ctx, newClaim("evt_1"))
	require.NoError(t, err)
	require.False(t, inserted)

	record, err := store.Read(ctx, "evt_1")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessing, record.Status)
	require.Equal(t, "invoice.paid", record.EventType)
	require.True(t, record.LiveMode)
	require.NotNil(t, record.ProcessingStartedAt)
}

func TestInsertIfAbsentRequiresEventID(t *testing.T) {
	store := memory.NewClaimStore()

	_, err := store.InsertIfAbsent(context.Background(), claimstore.NewClaim{EventType: "invoice.paid"})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestReadMissingRecordIsNotFound(t *testing.T) {
	store := memory.NewClaimStore()

	_, err := store.Read(context.Background(), "evt_missing")
	require.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestCompareAndSetStatusHonoursPrecondition(t *testing.T) {
	store := memory.NewClaimStore()
	ctx := context.Background()

	_, err := store.InsertIfAbsent(ctx, newClaim("evt_cas"))
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, "evt_cas", "boom"))

	observed, err := store.Read(ctx, "evt_cas")
	require.NoError(t, err)

	// Wrong expected status leaves the record untouched.
	updated, err := store.CompareAndSetStatus(ctx, "evt_cas",
		claimstore.Precondition{Status: claimstore.StatusProcessed, ProcessingStartedAt: observed.ProcessingStartedAt},
		claimstore.Takeover{CorrelationID: "corr-2"})
	require.NoError(t, err)
	require.False(t, updated)

	updated, err = store.CompareAndSetStatus(ctx, "evt_cas",
		claimstore.Precondition{Status: claimstore.StatusFailed, ProcessingStartedAt: observed.ProcessingStartedAt},
		claimstore.Takeover{CorrelationID: "corr-2"})
	require.NoError(t, err)
	require.True(t, updated)

	record, err := store.Read(ctx, "evt_cas")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessing, record.Status)
	require.Equal(t, "corr-2", record.CorrelationID)
	require.Empty(t, record.LastError)
	require.Nil(t, record.LastErrorAt)
}

func TestCompareAndSetStatusStaleGenerationLoses(t *testing.T) {
	store := memory.NewClaimStore()
	ctx := context.Background()

	_, err := store.InsertIfAbsent(ctx, newClaim("evt_generation"))
	require.NoError(t, err)

	// Two takeovers race on the same observed processing record.
	observed, err := store.Read(ctx, "evt_generation")
	require.NoError(t, err)
	precondition := claimstore.Precondition{
		Status:              observed.Status,
		ProcessingStartedAt: observed.ProcessingStartedAt,
	}

	first, err := store.CompareAndSetStatus(ctx, "evt_generation", precondition,
		claimstore.Takeover{CorrelationID: "corr-a", StartedAt: observed.UpdatedAt.Add(time.Minute)})
	require.NoError(t, err)
	require.True(t, first)

	// Status is still processing, but the winner rewrote the start time, so
	// the second racer's observed generation no longer matches.
	second, err := store.CompareAndSetStatus(ctx, "evt_generation", precondition,
		claimstore.Takeover{CorrelationID: "corr-b", StartedAt: observed.UpdatedAt.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.False(t, second)

	record, err := store.Read(ctx, "evt_generation")
	require.NoError(t, err)
	require.Equal(t, "corr-a", record.CorrelationID)
}

func TestCompareAndSetStatusMissingRecord(t *testing.T) {
	store := memory.NewClaimStore()

	updated, err := store.CompareAndSetStatus(context.Background(), "evt_ghost",
		claimstore.Precondition{Status: claimstore.StatusProcessing}, claimstore.Takeover{})
	require.NoError(t, err)
	require.False(t, updated)
}

func TestTerminalOutcomes(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := base
	store := memory.NewClaimStore().WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := store.InsertIfAbsent(ctx, newClaim("evt_term"))
	require.NoError(t, err)

	clock = base.Add(2 * time.Second)
	require.NoError(t, store.MarkFailed(ctx, "evt_term", "transient upstream"))
	record, err := store.Read(ctx, "evt_term")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusFailed, record.Status)
	require.Equal(t, "transient upstream", record.LastError)
	require.Equal(t, clock, record.UpdatedAt)

	clock = base.Add(5 * time.Second)
	require.NoError(t, store.MarkProcessed(ctx, "evt_term", 1250*time.Millisecond))
	record, err = store.Read(ctx, "evt_term")
	require.NoError(t, err)
	require.Equal(t, claimstore.StatusProcessed, record.Status)
	require.NotNil(t, record.ProcessingDurationMs)
	require.Equal(t, int64(1250), *record.ProcessingDurationMs)
	require.Equal(t, clock, record.UpdatedAt)
}

func TestReadReturnsCopy(t *testing.T) {
	store := memory.NewClaimStore()
	ctx := context.Background()

	_, err := store.InsertIfAbsent(ctx, newClaim("evt_copy"))
	require.NoError(t, err)

	first, err := store.Read(ctx, "evt_copy")
	require.NoError(t, err)
	*first.ProcessingStartedAt = time.Time{}

	second, err := store.Read(ctx, "evt_copy")
	require.NoError(t, err)
	require.False(t, second.ProcessingStartedAt.IsZero())
}

func TestOperationsHonourContextCancellation(t *testing.T) {
	store := memory.NewClaimStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.InsertIfAbsent(ctx, newClaim("evt_ctx"))
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.Read(ctx, "evt_ctx")
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.CompareAndSetStatus(ctx, "evt_ctx", claimstore.Precondition{Status: claimstore.StatusProcessing}, claimstore.Takeover{})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, store.MarkProcessed(ctx, "evt_ctx", 0), context.Canceled)
	require.ErrorIs(t, store.MarkFailed(ctx, "evt_ctx", "x"), context.Canceled)
}
