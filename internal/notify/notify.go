package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the redis pub/sub channel ledger events are published on.
// Consumers (notification fan-out, websocket bridges) subscribe here.
const Channel = "ledger.events"

// Event is implemented by every published payload. Kind is a stable
// identifier consumers can switch on.
type Event interface {
	Kind() string
}

type CreditAdded struct {
	AccountID  uuid.UUID `json:"account_id"`
	Amount     int64     `json:"amount"`
	IntentID   uuid.UUID `json:"intent_id"`
	OrderCode  string    `json:"order_code"`
	ExternalID string    `json:"external_id"`
}

func (CreditAdded) Kind() string { return "credit_added" }

type HoldCreated struct {
	HoldID           uuid.UUID  `json:"hold_id"`
	AccountID        uuid.UUID  `json:"account_id"`
	Amount           int64      `json:"amount"`
	Reason           string     `json:"reason"`
	ScheduledRelease time.Time  `json:"scheduled_release"`
	OrderID          *uuid.UUID `json:"order_id,omitempty"`
}

func (HoldCreated) Kind() string { return "hold_created" }

type HoldReleased struct {
	HoldID    uuid.UUID `json:"hold_id"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
}

func (HoldReleased) Kind() string { return "hold_released" }

type HoldCancelled struct {
	HoldID    uuid.UUID `json:"hold_id"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note,omitempty"`
}

func (HoldCancelled) Kind() string { return "hold_cancelled" }

type WithdrawalRequested struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	AccountID    uuid.UUID `json:"account_id"`
	Amount       int64     `json:"amount"`
}

func (WithdrawalRequested) Kind() string { return "withdrawal_requested" }

type WithdrawalApproved struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	AccountID    uuid.UUID `json:"account_id"`
	Amount       int64     `json:"amount"`
}

func (WithdrawalApproved) Kind() string { return "withdrawal_approved" }

type WithdrawalRejected struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	AccountID    uuid.UUID `json:"account_id"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason,omitempty"`
}

func (WithdrawalRejected) Kind() string { return "withdrawal_rejected" }

// BalanceAdjusted is emitted for operator adjustments, which only ever touch
// the available balance.
type BalanceAdjusted struct {
	AccountID      uuid.UUID `json:"account_id"`
	AvailableDelta int64     `json:"available_delta"`
	Note           string    `json:"note,omitempty"`
}

func (BalanceAdjusted) Kind() string { return "balance_adjusted" }

type OrderSettled struct {
	OrderID  uuid.UUID `json:"order_id"`
	BuyerID  uuid.UUID `json:"buyer_id"`
	SellerID uuid.UUID `json:"seller_id"`
	Amount   int64     `json:"amount"`
	HoldID   uuid.UUID `json:"hold_id"`
}

func (OrderSettled) Kind() string { return "order_settled" }

// Publisher delivers events to downstream consumers. Publishing is best
// effort: ledger mutations must never fail because a notification did.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type envelope struct {
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Event     `json:"payload"`
}

// RedisPublisher publishes JSON-encoded events on a redis pub/sub channel.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
}

func NewRedisPublisher(client redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{client: client, channel: Channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(envelope{
		Kind:       event.Kind(),
		OccurredAt: time.Now().UTC(),
		Payload:    event,
	})
	if err != nil {
		zap.L().Warn("marshal notification", zap.String("kind", event.Kind()), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		zap.L().Warn("publish notification", zap.String("kind", event.Kind()), zap.Error(err))
	}
}

// NopPublisher discards events. Used in tests and when redis is not
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) {}

// Decode parses a published envelope back into its kind and raw payload.
func Decode(data []byte) (kind string, payload json.RawMessage, err error) {
	var env struct {
		Kind    string          `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode notification envelope: %w", err)
	}
	return env.Kind, env.Payload, nil
}
