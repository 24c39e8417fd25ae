package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a user's wallet: the spendable balance plus the shadow balance
// of open holds. Both are non-negative amounts in the smallest currency unit
// and are mutated only through atomic balance deltas.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Available int64     `json:"available"`
	Pending   int64     `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hold is a single escrowed amount owed to an account but not yet spendable.
type Hold struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	Amount           int64      `json:"amount"`
	Reason           string     `json:"reason"`
	Status           string     `json:"status"`
	ScheduledRelease time.Time  `json:"scheduled_release"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	OrderID          *uuid.UUID `json:"order_id,omitempty"`
	Note             *string    `json:"note,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PaymentIntent is a top-up request awaiting confirmation from the external
// payment gateway. OrderCode is unique; its suffix is what reconciliation
// matches against incoming transfer descriptions.
type PaymentIntent struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	OrderCode   string    `json:"order_code"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	CheckoutRef string    `json:"checkout_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExternalTransaction is a deduplicated record of a gateway or bank
// notification. ExternalID is the idempotency key; a record is never updated
// except to mark it processed or annotate an error.
type ExternalTransaction struct {
	ExternalID  string     `json:"external_id"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
	ObservedAt  time.Time  `json:"observed_at"`
	Processed   bool       `json:"processed"`
	IntentID    *uuid.UUID `json:"intent_id,omitempty"`
	ErrorNote   *string    `json:"error_note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BankDetails is the payout destination for a withdrawal request.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// WithdrawalRequest tracks a payout of available balance. The amount is
// debited at request time and restored only on rejection.
type WithdrawalRequest struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	Amount      int64       `json:"amount"`
	Bank        BankDetails `json:"bank"`
	Status      string      `json:"status"`
	Note        *string     `json:"note,omitempty"`
	OperatorID  *uuid.UUID  `json:"operator_id,omitempty"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
