package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/gateway"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source injected into the services so
// order codes and release schedules are deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// stubGateway fails the next failures calls, then succeeds.
type stubGateway struct {
	mu        sync.Mutex
	failures  int
	checkouts int
	status    gateway.IntentStatus
}

func (g *stubGateway) CreateCheckout(ctx context.Context, orderCode string, amount int64) (gateway.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts++
	if g.failures > 0 {
		g.failures--
		return gateway.Checkout{}, errors.New("gateway unreachable")
	}
	return gateway.Checkout{
		Ref:    "CHK-" + orderCode,
		PayURL: "https://checkout.example.test/pay/" + orderCode,
	}, nil
}

func (g *stubGateway) PollIntentStatus(ctx context.Context, orderCode string) (gateway.IntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == "" {
		return gateway.IntentStatusAwaiting, nil
	}
	return g.status, nil
}

const (
	testWithdrawMin = int64(50_000)
	testWithdrawMax = int64(100_000_000)
)

type testEnv struct {
	store       *repository.MemoryStore
	clock       *fakeClock
	gateway     *stubGateway
	balances    *BalanceService
	holds       *HoldService
	topups      *TopupService
	withdrawals *WithdrawalService
	settlement  *SettlementService
	recon       *ReconciliationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := newFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	gw := &stubGateway{}
	events := notify.NopPublisher{}

	holds := NewHoldService(store, events, 3)
	holds.now = clock.Now
	topups := NewTopupService(store, gw, events)
	topups.now = clock.Now
	withdrawals := NewWithdrawalService(store, events, WithdrawalBounds{Min: testWithdrawMin, Max: testWithdrawMax})
	withdrawals.now = clock.Now

	return &testEnv{
		store:       store,
		clock:       clock,
		gateway:     gw,
		balances:    NewBalanceService(store, events),
		holds:       holds,
		topups:      topups,
		withdrawals: withdrawals,
		settlement:  NewSettlementService(store, holds, events),
		recon:       NewReconciliationService(store),
	}
}

// fund provisions an account and credits its available balance directly.
func (e *testEnv) fund(t *testing.T, accountID uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	queries := e.store.Queries()
	require.NoError(t, queries.EnsureAccount(ctx, accountID))
	if amount != 0 {
		require.NoError(t, queries.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
			AccountID:      accountID,
			AvailableDelta: amount,
		}))
	}
}

func (e *testEnv) account(t *testing.T, id uuid.UUID) models.Account {
	t.Helper()
	account, err := e.store.Queries().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account
}

func (e *testEnv) intent(t *testing.T, id uuid.UUID) models.PaymentIntent {
	t.Helper()
	intent, err := e.store.Queries().GetPaymentIntent(context.Background(), id)
	require.NoError(t, err)
	return intent
}
