package gateway

import (
	"context"
	"time"
)

// Checkout is the gateway-side session created for a payment intent. Ref is
// the gateway's opaque reference; PayURL is where the buyer completes the
// transfer.
type Checkout struct {
	Ref    string
	PayURL string
}

// IntentStatus is the gateway's view of a checkout session.
type IntentStatus string

const (
	IntentStatusUnknown   IntentStatus = "UNKNOWN"
	IntentStatusAwaiting  IntentStatus = "AWAITING_PAYMENT"
	IntentStatusPaid      IntentStatus = "PAID"
	IntentStatusCancelled IntentStatus = "CANCELLED"
	IntentStatusExpired   IntentStatus = "EXPIRED"
)

// Gateway represents the external payment gateway interface.
type Gateway interface {
	// CreateCheckout registers an order code and amount with the gateway
	// and returns the checkout session.
	CreateCheckout(ctx context.Context, orderCode string, amount int64) (Checkout, error)

	// PollIntentStatus fetches the gateway's status for an order code.
	PollIntentStatus(ctx context.Context, orderCode string) (IntentStatus, error)
}

// RetryConfig bounds the retry loop around gateway calls.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	return c
}
