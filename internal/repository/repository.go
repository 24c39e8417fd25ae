package repository

import (
	"context"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/google/uuid"
)

// Querier is the query surface shared by the pooled Postgres store and the
// in-memory store, usable both inside and outside a transaction.
type Querier interface {
	// Accounts.
	EnsureAccount(ctx context.Context, id uuid.UUID) error
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	// ApplyBalanceDelta atomically shifts an account's balances. It returns
	// domain.ErrInsufficientFunds when either balance would go negative and
	// applies no partial effect.
	ApplyBalanceDelta(ctx context.Context, arg ApplyBalanceDeltaParams) error
	ListAccountIDs(ctx context.Context, limit, offset int32) ([]uuid.UUID, error)
	BalanceTotals(ctx context.Context) (BalanceTotalsRow, error)

	// Holds.
	CreateHold(ctx context.Context, arg CreateHoldParams) (models.Hold, error)
	GetHold(ctx context.Context, id uuid.UUID) (models.Hold, error)
	GetHoldForUpdate(ctx context.Context, id uuid.UUID) (models.Hold, error)
	// FinalizeHold transitions an OPEN hold to a terminal status; the guard
	// is part of the statement, so the returned row count is zero when the
	// hold was already terminal.
	FinalizeHold(ctx context.Context, arg FinalizeHoldParams) (int64, error)
	ListDueHolds(ctx context.Context, before time.Time, limit int32) ([]models.Hold, error)
	ListHoldsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.Hold, error)
	ListHoldsByStatus(ctx context.Context, status string, limit, offset int32) ([]models.Hold, error)
	CountOverdueHolds(ctx context.Context, now time.Time) (int64, error)
	CountHoldsMaturingWithin(ctx context.Context, from, to time.Time) (int64, error)
	SumOpenHoldsByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)

	// Payment intents.
	CreatePaymentIntent(ctx context.Context, arg CreatePaymentIntentParams) (models.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id uuid.UUID) (models.PaymentIntent, error)
	GetPaymentIntentForUpdate(ctx context.Context, id uuid.UUID) (models.PaymentIntent, error)
	// FindPendingIntentsBySuffix returns PENDING intents whose order-code
	// suffix and amount both match.
	FindPendingIntentsBySuffix(ctx context.Context, suffix string, amount int64) ([]models.PaymentIntent, error)
	// FinalizePaymentIntent transitions a PENDING intent to a terminal
	// status; zero rows means it was already terminal.
	FinalizePaymentIntent(ctx context.Context, arg FinalizePaymentIntentParams) (int64, error)
	SetPaymentIntentCheckoutRef(ctx context.Context, id uuid.UUID, checkoutRef string) error
	ListPaymentIntentsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.PaymentIntent, error)

	// External transactions.
	// InsertExternalTransaction returns domain.ErrDuplicateExternalTransaction
	// when the external id was already recorded.
	InsertExternalTransaction(ctx context.Context, arg InsertExternalTransactionParams) (models.ExternalTransaction, error)
	GetExternalTransaction(ctx context.Context, externalID string) (models.ExternalTransaction, error)
	MarkExternalTransactionProcessed(ctx context.Context, arg MarkExternalTransactionProcessedParams) error
	ListUnmatchedExternalTransactions(ctx context.Context, limit, offset int32) ([]models.ExternalTransaction, error)

	// Withdrawal requests.
	CreateWithdrawal(ctx context.Context, arg CreateWithdrawalParams) (models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error)
	GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error)
	// HasOpenWithdrawal reports whether the owner already has a PENDING or
	// PROCESSING request.
	HasOpenWithdrawal(ctx context.Context, ownerID uuid.UUID) (bool, error)
	// UpdateWithdrawalStatus transitions a request out of the given prior
	// statuses; zero rows means the guard did not match.
	UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error)
	ListWithdrawalsByStatus(ctx context.Context, status string, limit, offset int32) ([]models.WithdrawalRequest, error)
	ListWithdrawalsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error)

	// Audit log.
	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error

	// Idempotency keys.
	GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (bool, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error)
}

// Store provides query access and transaction scoping. RunInTx executes fn
// within a single all-or-nothing unit of work: a crash or error mid-callback
// leaves the pre-transaction state intact.
type Store interface {
	Queries() Querier
	RunInTx(ctx context.Context, fn func(q Querier) error) error
}

type ApplyBalanceDeltaParams struct {
	AccountID      uuid.UUID
	AvailableDelta int64
	PendingDelta   int64
}

type BalanceTotalsRow struct {
	Accounts       int64
	TotalAvailable int64
	TotalPending   int64
}

type CreateHoldParams struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Amount           int64
	Reason           string
	ScheduledRelease time.Time
	OrderID          *uuid.UUID
	Note             *string
}

type FinalizeHoldParams struct {
	ID         uuid.UUID
	Status     string
	ReleasedAt time.Time
	Note       *string
}

type CreatePaymentIntentParams struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	OrderCode string
	Amount    int64
}

type FinalizePaymentIntentParams struct {
	ID     uuid.UUID
	Status string
}

type InsertExternalTransactionParams struct {
	ExternalID  string
	Description string
	Amount      int64
	ObservedAt  time.Time
}

type MarkExternalTransactionProcessedParams struct {
	ExternalID string
	IntentID   *uuid.UUID
	ErrorNote  *string
}

type CreateWithdrawalParams struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Amount  int64
	Bank    models.BankDetails
}

type UpdateWithdrawalStatusParams struct {
	ID          uuid.UUID
	FromStatus  []string
	Status      string
	Note        *string
	OperatorID  *uuid.UUID
	ProcessedAt *time.Time
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  string
	NextState  string
	Metadata   []byte
}

type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	InProgress     bool
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	CreatedAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
}
