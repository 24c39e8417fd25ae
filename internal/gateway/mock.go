package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockGateway simulates the external checkout gateway for local development
// and tests. It remembers created checkouts so status polls are consistent.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
	// Latency is the simulated per-call delay. Zero means no delay.
	Latency time.Duration

	mu       sync.Mutex
	statuses map[string]IntentStatus
}

// NewMockGateway creates a MockGateway with no simulated failures.
func NewMockGateway() *MockGateway {
	return &MockGateway{statuses: map[string]IntentStatus{}}
}

func (g *MockGateway) CreateCheckout(ctx context.Context, orderCode string, amount int64) (Checkout, error) {
	if err := g.simulate(ctx); err != nil {
		return Checkout{}, err
	}

	g.mu.Lock()
	g.statuses[orderCode] = IntentStatusAwaiting
	g.mu.Unlock()

	ref := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	return Checkout{
		Ref:    ref,
		PayURL: fmt.Sprintf("https://checkout.example.test/pay/%s", ref),
	}, nil
}

func (g *MockGateway) PollIntentStatus(ctx context.Context, orderCode string) (IntentStatus, error) {
	if err := g.simulate(ctx); err != nil {
		return IntentStatusUnknown, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if status, ok := g.statuses[orderCode]; ok {
		return status, nil
	}
	return IntentStatusUnknown, nil
}

// SetStatus overrides a checkout's status. Used by tests to simulate the
// buyer completing or abandoning a payment.
func (g *MockGateway) SetStatus(orderCode string, status IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderCode] = status
}

func (g *MockGateway) simulate(ctx context.Context) error {
	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}
	if g.FailureRate > 0 && rand.Float64() < g.FailureRate {
		return fmt.Errorf("gateway temporarily unavailable")
	}
	return nil
}
