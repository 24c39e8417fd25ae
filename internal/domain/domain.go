package domain

import "errors"

// Ledger error taxonomy. Services return these sentinels (wrapped with
// context) and the HTTP layer maps them onto problem responses.
var (
	// ErrInvalidAmount covers non-positive amounts and amounts outside the
	// configured withdrawal bounds.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds is returned when a balance delta would drive
	// available or pending below zero. No partial effect is applied.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflictingRequest is returned when an account already has a
	// pending or processing withdrawal request.
	ErrConflictingRequest = errors.New("conflicting withdrawal request")

	// ErrNotFound is returned when a referenced account, hold, intent or
	// withdrawal does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal is returned when an operation targets an entity
	// past its terminal state. Idempotent operations swallow it and return
	// the prior result instead.
	ErrAlreadyTerminal = errors.New("entity is in a terminal state")

	// ErrReconciliationAmbiguous marks an external transaction that matched
	// zero or multiple pending intents. It is parked for operator review,
	// never retried automatically.
	ErrReconciliationAmbiguous = errors.New("reconciliation ambiguous")

	// ErrGatewayUnavailable is surfaced after retries against the external
	// payment gateway are exhausted.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrDuplicateExternalTransaction is returned when an external
	// transaction id has already been recorded. The unique external id is
	// the dedupe key for webhook redelivery.
	ErrDuplicateExternalTransaction = errors.New("duplicate external transaction")
)

// Hold reasons.
const (
	HoldReasonSaleCommission   = "sale_commission"
	HoldReasonRefundProtection = "refund_protection"
	HoldReasonDispute          = "dispute"
)

// ValidHoldReason reports whether reason is one of the enumerated values.
func ValidHoldReason(reason string) bool {
	switch reason {
	case HoldReasonSaleCommission, HoldReasonRefundProtection, HoldReasonDispute:
		return true
	}
	return false
}

// Hold statuses. open is the only non-terminal state.
const (
	HoldStatusOpen      = "OPEN"
	HoldStatusReleased  = "RELEASED"
	HoldStatusCancelled = "CANCELLED"
)

// Payment intent statuses. pending is the only non-terminal state.
const (
	IntentStatusPending   = "PENDING"
	IntentStatusPaid      = "PAID"
	IntentStatusCancelled = "CANCELLED"
	IntentStatusFailed    = "FAILED"
)

// Withdrawal request statuses.
const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusRejected   = "REJECTED"
)

// WithdrawalTerminal reports whether status is a terminal withdrawal state.
func WithdrawalTerminal(status string) bool {
	return status == WithdrawalStatusCompleted || status == WithdrawalStatusRejected
}
