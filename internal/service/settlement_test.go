package service

import (
	"context"
	"testing"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSettleDebitsBuyerAndEscrowsSeller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	orderID := uuid.New()
	env.fund(t, buyer, 80_000)

	result, err := env.settlement.Settle(ctx, SettleRequest{
		OrderID:  orderID,
		BuyerID:  buyer,
		SellerID: seller,
		Total:    50_000,
	})
	require.NoError(t, err)
	require.Equal(t, orderID, result.OrderID)
	require.Equal(t, domain.HoldStatusOpen, result.Hold.Status)
	require.Equal(t, domain.HoldReasonSaleCommission, result.Hold.Reason)
	require.Equal(t, int64(50_000), result.Hold.Amount)
	require.NotNil(t, result.Hold.OrderID)
	require.Equal(t, orderID, *result.Hold.OrderID)

	buyerAccount := env.account(t, buyer)
	require.Equal(t, int64(30_000), buyerAccount.Available)
	require.Equal(t, int64(0), buyerAccount.Pending)

	sellerAccount := env.account(t, seller)
	require.Equal(t, int64(0), sellerAccount.Available)
	require.Equal(t, int64(50_000), sellerAccount.Pending)
}

func TestSettleInsufficientFundsAppliesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	env.fund(t, buyer, 10_000)

	_, err := env.settlement.Settle(ctx, SettleRequest{
		OrderID:  uuid.New(),
		BuyerID:  buyer,
		SellerID: seller,
		Total:    50_000,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	buyerAccount := env.account(t, buyer)
	require.Equal(t, int64(10_000), buyerAccount.Available)
	require.Equal(t, int64(0), buyerAccount.Pending)

	// The seller account was never provisioned and no hold exists.
	_, err = env.store.Queries().GetAccount(ctx, seller)
	require.ErrorIs(t, err, domain.ErrNotFound)

	holds, err := env.holds.ListByStatus(ctx, domain.HoldStatusOpen, 50, 0)
	require.NoError(t, err)
	require.Empty(t, holds)
}

func TestSettleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	same := uuid.New()

	_, err := env.settlement.Settle(ctx, SettleRequest{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Total:    0,
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.settlement.Settle(ctx, SettleRequest{
		OrderID:  uuid.New(),
		BuyerID:  same,
		SellerID: same,
		Total:    1_000,
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestSettledHoldReleasesAfterWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	env.fund(t, buyer, 50_000)

	result, err := env.settlement.Settle(ctx, SettleRequest{
		OrderID:  uuid.New(),
		BuyerID:  buyer,
		SellerID: seller,
		Total:    50_000,
	})
	require.NoError(t, err)

	env.clock.Advance(3*24*time.Hour + time.Second)

	released, attempted, err := env.holds.SweepDue(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, released)
	require.Equal(t, 1, attempted)

	hold, err := env.holds.Get(ctx, result.Hold.ID)
	require.NoError(t, err)
	require.Equal(t, domain.HoldStatusReleased, hold.Status)

	sellerAccount := env.account(t, seller)
	require.Equal(t, int64(50_000), sellerAccount.Available)
	require.Equal(t, int64(0), sellerAccount.Pending)
}
