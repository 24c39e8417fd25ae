package service

import (
	"context"
	"testing"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testBank = models.BankDetails{
	BankName:      "Vietcombank",
	AccountNumber: "0123456789",
	AccountName:   "NGUYEN VAN A",
}

func TestWithdrawalRequestDebitsImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	env.fund(t, owner, 200_000)

	withdrawal, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  150_000,
		Bank:    testBank,
	})
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalStatusPending, withdrawal.Status)
	require.Equal(t, int64(150_000), withdrawal.Amount)

	account := env.account(t, owner)
	require.Equal(t, int64(50_000), account.Available)
}

func TestWithdrawalBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		amount int64
		ok     bool
	}{
		{name: "below_min", amount: testWithdrawMin - 1, ok: false},
		{name: "at_min", amount: testWithdrawMin, ok: true},
		{name: "at_max", amount: testWithdrawMax, ok: true},
		{name: "above_max", amount: testWithdrawMax + 1, ok: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			owner := uuid.New()
			env.fund(t, owner, testWithdrawMax)

			_, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
				OwnerID: owner,
				Amount:  tc.amount,
				Bank:    testBank,
			})
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			}
		})
	}
}

func TestWithdrawalRequiresCompleteBankDetails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	env.fund(t, owner, 200_000)

	_, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    models.BankDetails{BankName: "Vietcombank"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWithdrawalInsufficientFundsLeavesNoRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	env.fund(t, owner, 60_000)

	_, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    testBank,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.Equal(t, int64(60_000), env.account(t, owner).Available)

	requests, err := env.withdrawals.ListByOwner(ctx, owner, 10, 0)
	require.NoError(t, err)
	require.Empty(t, requests)
}

func TestWithdrawalOneOutstandingRequestPerAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	env.fund(t, owner, 500_000)

	first, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    testBank,
	})
	require.NoError(t, err)

	_, err = env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    testBank,
	})
	require.ErrorIs(t, err, domain.ErrConflictingRequest)

	// Still blocked while the operator is processing it.
	operator := uuid.New()
	_, err = env.withdrawals.MarkProcessing(ctx, first.ID, operator)
	require.NoError(t, err)
	_, err = env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    testBank,
	})
	require.ErrorIs(t, err, domain.ErrConflictingRequest)

	// A terminal decision unblocks the account.
	_, err = env.withdrawals.Approve(ctx, first.ID, operator, "")
	require.NoError(t, err)
	_, err = env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    testBank,
	})
	require.NoError(t, err)
}

func TestWithdrawalApproveHasNoBalanceEffect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	operator := uuid.New()
	env.fund(t, owner, 200_000)

	withdrawal, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  150_000,
		Bank:    testBank,
	})
	require.NoError(t, err)

	approved, err := env.withdrawals.Approve(ctx, withdrawal.ID, operator, "paid via bank transfer")
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalStatusCompleted, approved.Status)
	require.NotNil(t, approved.OperatorID)
	require.Equal(t, operator, *approved.OperatorID)
	require.NotNil(t, approved.ProcessedAt)

	require.Equal(t, int64(50_000), env.account(t, owner).Available)
}

func TestWithdrawalRejectRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	operator := uuid.New()
	env.fund(t, owner, 200_000)

	withdrawal, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  150_000,
		Bank:    testBank,
	})
	require.NoError(t, err)
	require.Equal(t, int64(50_000), env.account(t, owner).Available)

	rejected, err := env.withdrawals.Reject(ctx, withdrawal.ID, operator, "bank account name mismatch")
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalStatusRejected, rejected.Status)
	require.NotNil(t, rejected.Note)

	require.Equal(t, int64(200_000), env.account(t, owner).Available)
}

func TestWithdrawalDecisionIsFinal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	operator := uuid.New()
	env.fund(t, owner, 200_000)

	withdrawal, err := env.withdrawals.Request(ctx, RequestWithdrawalRequest{
		OwnerID: owner,
		Amount:  100_000,
		Bank:    testBank,
	})
	require.NoError(t, err)

	_, err = env.withdrawals.Approve(ctx, withdrawal.ID, operator, "")
	require.NoError(t, err)

	_, err = env.withdrawals.Approve(ctx, withdrawal.ID, operator, "")
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	_, err = env.withdrawals.Reject(ctx, withdrawal.ID, operator, "")
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)
	_, err = env.withdrawals.MarkProcessing(ctx, withdrawal.ID, operator)
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	// The debit stands; rejection after completion must not refund.
	require.Equal(t, int64(100_000), env.account(t, owner).Available)
}
