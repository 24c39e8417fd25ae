package gateway

import (
	"context"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"go.uber.org/zap"
)

// RetryingGateway wraps another gateway with bounded exponential backoff.
// Once attempts are exhausted it surfaces domain.ErrGatewayUnavailable so
// callers can map the failure without inspecting transport errors.
type RetryingGateway struct {
	inner Gateway
	cfg   RetryConfig
}

func NewRetryingGateway(inner Gateway, cfg RetryConfig) *RetryingGateway {
	return &RetryingGateway{inner: inner, cfg: cfg.withDefaults()}
}

func (g *RetryingGateway) CreateCheckout(ctx context.Context, orderCode string, amount int64) (Checkout, error) {
	var checkout Checkout
	err := g.retry(ctx, "create_checkout", func() error {
		var err error
		checkout, err = g.inner.CreateCheckout(ctx, orderCode, amount)
		return err
	})
	if err != nil {
		return Checkout{}, err
	}
	return checkout, nil
}

func (g *RetryingGateway) PollIntentStatus(ctx context.Context, orderCode string) (IntentStatus, error) {
	var status IntentStatus
	err := g.retry(ctx, "poll_intent_status", func() error {
		var err error
		status, err = g.inner.PollIntentStatus(ctx, orderCode)
		return err
	})
	if err != nil {
		return IntentStatusUnknown, err
	}
	return status, nil
}

func (g *RetryingGateway) retry(ctx context.Context, op string, fn func() error) error {
	delay := g.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= g.cfg.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		zap.L().Warn("gateway call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == g.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	zap.L().Error("gateway retries exhausted", zap.String("op", op), zap.Error(lastErr))
	return domain.ErrGatewayUnavailable
}
