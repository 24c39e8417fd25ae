package worker

import (
	"context"
	"testing"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedMaturedHold(t *testing.T, store *repository.MemoryStore, owner uuid.UUID, amount int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	queries := store.Queries()

	require.NoError(t, queries.EnsureAccount(ctx, owner))
	hold, err := queries.CreateHold(ctx, repository.CreateHoldParams{
		ID:               uuid.New(),
		OwnerID:          owner,
		Amount:           amount,
		Reason:           domain.HoldReasonSaleCommission,
		ScheduledRelease: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, queries.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
		AccountID:    owner,
		PendingDelta: amount,
	}))
	return hold.ID
}

func TestReleaseWorkerRunOnceReleasesMaturedHolds(t *testing.T) {
	store := repository.NewMemoryStore()
	holds := service.NewHoldService(store, notify.NopPublisher{}, 3)
	owner := uuid.New()
	holdID := seedMaturedHold(t, store, owner, 12_000)

	w := NewReleaseWorker(holds).WithBatchSize(10)
	released, attempted, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, released)
	require.Equal(t, 1, attempted)

	hold, err := holds.Get(context.Background(), holdID)
	require.NoError(t, err)
	require.Equal(t, domain.HoldStatusReleased, hold.Status)

	account, err := store.Queries().GetAccount(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(12_000), account.Available)
	require.Equal(t, int64(0), account.Pending)
}

func TestReleaseWorkerRunOnceIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	holds := service.NewHoldService(store, notify.NopPublisher{}, 3)
	owner := uuid.New()
	seedMaturedHold(t, store, owner, 5_000)

	w := NewReleaseWorker(holds)
	_, _, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	released, attempted, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, released)
	require.Zero(t, attempted)

	account, err := store.Queries().GetAccount(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(5_000), account.Available)
}

func TestReleaseWorkerStopIsSafe(t *testing.T) {
	store := repository.NewMemoryStore()
	holds := service.NewHoldService(store, notify.NopPublisher{}, 3)

	w := NewReleaseWorker(holds).WithInterval(time.Hour)
	stop := w.Run(context.Background())
	stop()
	stop()
}

func TestReconciliationWorkerStopIsSafe(t *testing.T) {
	store := repository.NewMemoryStore()
	recon := service.NewReconciliationService(store)
	owner := uuid.New()
	seedMaturedHold(t, store, owner, 2_000)

	w := NewReconciliationWorker(recon).WithInterval(time.Hour)
	stop := w.Run(context.Background())
	stop()
	stop()

	mismatches, err := recon.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, mismatches)
}
