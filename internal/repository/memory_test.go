package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryRunInTxRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()

	require.NoError(t, store.Queries().EnsureAccount(ctx, accountID))
	require.NoError(t, store.Queries().ApplyBalanceDelta(ctx, ApplyBalanceDeltaParams{
		AccountID:      accountID,
		AvailableDelta: 1_000,
	}))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(q Querier) error {
		if err := q.ApplyBalanceDelta(ctx, ApplyBalanceDeltaParams{
			AccountID:      accountID,
			AvailableDelta: 500,
		}); err != nil {
			return err
		}
		if _, err := q.CreateHold(ctx, CreateHoldParams{
			ID:               uuid.New(),
			OwnerID:          accountID,
			Amount:           500,
			Reason:           domain.HoldReasonSaleCommission,
			ScheduledRelease: time.Now().Add(time.Hour),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	account, err := store.Queries().GetAccount(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), account.Available)

	holds, err := store.Queries().ListHoldsByOwner(ctx, accountID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, holds)
}

func TestMemoryRunInTxCommitsOnSuccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()

	err := store.RunInTx(ctx, func(q Querier) error {
		if err := q.EnsureAccount(ctx, accountID); err != nil {
			return err
		}
		return q.ApplyBalanceDelta(ctx, ApplyBalanceDeltaParams{
			AccountID:      accountID,
			AvailableDelta: 2_500,
		})
	})
	require.NoError(t, err)

	account, err := store.Queries().GetAccount(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, int64(2_500), account.Available)
}

func TestMemoryBalanceDeltaGuard(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	require.NoError(t, store.Queries().EnsureAccount(ctx, accountID))

	err := store.Queries().ApplyBalanceDelta(ctx, ApplyBalanceDeltaParams{
		AccountID:      accountID,
		AvailableDelta: -1,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = store.Queries().ApplyBalanceDelta(ctx, ApplyBalanceDeltaParams{
		AccountID:    accountID,
		PendingDelta: -1,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = store.Queries().ApplyBalanceDelta(ctx, ApplyBalanceDeltaParams{
		AccountID:      uuid.New(),
		AvailableDelta: 100,
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryDuplicateExternalTransaction(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	params := InsertExternalTransactionParams{
		ExternalID:  "TX-1",
		Description: "ck 123456",
		Amount:      10_000,
		ObservedAt:  time.Now(),
	}
	_, err := store.Queries().InsertExternalTransaction(ctx, params)
	require.NoError(t, err)

	_, err = store.Queries().InsertExternalTransaction(ctx, params)
	require.ErrorIs(t, err, domain.ErrDuplicateExternalTransaction)
}

func TestMemoryDuplicateOrderCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Queries().CreatePaymentIntent(ctx, CreatePaymentIntentParams{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		OrderCode: "1700000000123",
		Amount:    10_000,
	})
	require.NoError(t, err)

	_, err = store.Queries().CreatePaymentIntent(ctx, CreatePaymentIntentParams{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		OrderCode: "1700000000123",
		Amount:    20_000,
	})
	require.ErrorIs(t, err, domain.ErrConflictingRequest)
}

func TestMemoryFinalizeHoldGuard(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	hold, err := store.Queries().CreateHold(ctx, CreateHoldParams{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		Amount:           500,
		Reason:           domain.HoldReasonSaleCommission,
		ScheduledRelease: time.Now(),
	})
	require.NoError(t, err)

	rows, err := store.Queries().FinalizeHold(ctx, FinalizeHoldParams{
		ID:         hold.ID,
		Status:     domain.HoldStatusReleased,
		ReleasedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	rows, err = store.Queries().FinalizeHold(ctx, FinalizeHoldParams{
		ID:         hold.ID,
		Status:     domain.HoldStatusCancelled,
		ReleasedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Zero(t, rows)
}

func TestMemoryPagination(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	require.Equal(t, []int{1, 2}, paginate(items, 2, 0))
	require.Equal(t, []int{3, 4}, paginate(items, 2, 2))
	require.Equal(t, []int{5}, paginate(items, 2, 4))
	require.Nil(t, paginate(items, 2, 5))
	require.Equal(t, items, paginate(items, 0, 0))
}
