package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/gateway"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	orderCodeAttempts = 3
	creditAttempts    = 3
)

// TopupService tracks payment intents and reconciles external gateway
// notifications against them. Credits happen exactly once per external
// transaction id; anything the matcher cannot resolve unambiguously is
// parked for an operator, never guessed.
type TopupService struct {
	store   QueryStore
	gateway gateway.Gateway
	events  notify.Publisher
	audit   *AuditService
	now     func() time.Time
}

func NewTopupService(store QueryStore, gw gateway.Gateway, events notify.Publisher) *TopupService {
	return &TopupService{
		store:   store,
		gateway: gw,
		events:  events,
		audit:   NewAuditService(store),
		now:     time.Now,
	}
}

// CreateIntent registers a top-up intent and opens a checkout session with
// the gateway. The gateway call happens outside any transaction; a gateway
// failure marks the intent failed rather than leaving it pending forever.
func (s *TopupService) CreateIntent(ctx context.Context, ownerID uuid.UUID, amount int64) (models.PaymentIntent, error) {
	if amount <= 0 {
		return models.PaymentIntent{}, fmt.Errorf("top-up amount %d: %w", amount, domain.ErrInvalidAmount)
	}

	queries := s.store.Queries()
	if err := queries.EnsureAccount(ctx, ownerID); err != nil {
		return models.PaymentIntent{}, err
	}

	// Order codes are coarse timestamps, so concurrent top-ups can collide.
	// Nudge the timestamp and retry a few times before giving up.
	var (
		intent models.PaymentIntent
		err    error
	)
	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		intent, err = queries.CreatePaymentIntent(ctx, repository.CreatePaymentIntentParams{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			OrderCode: domain.NewOrderCode(s.now().Add(time.Duration(attempt) * time.Millisecond)),
			Amount:    amount,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflictingRequest) {
			return models.PaymentIntent{}, err
		}
	}
	if err != nil {
		return models.PaymentIntent{}, fmt.Errorf("allocate order code: %w", err)
	}

	checkout, err := s.gateway.CreateCheckout(ctx, intent.OrderCode, amount)
	if err != nil {
		if _, failErr := queries.FinalizePaymentIntent(ctx, repository.FinalizePaymentIntentParams{
			ID:     intent.ID,
			Status: domain.IntentStatusFailed,
		}); failErr != nil {
			zap.L().Error("mark intent failed after gateway error",
				zap.String("intent_id", intent.ID.String()),
				zap.Error(failErr),
			)
		}
		return models.PaymentIntent{}, err
	}

	if err := queries.SetPaymentIntentCheckoutRef(ctx, intent.ID, checkout.Ref); err != nil {
		return models.PaymentIntent{}, err
	}
	intent.CheckoutRef = checkout.Ref
	return intent, nil
}

// ExternalNotification is the normalized payload of a gateway webhook or
// bank-feed row.
type ExternalNotification struct {
	ExternalID  string
	Description string
	Amount      int64
	ObservedAt  time.Time
}

// ProcessNotification reconciles one external transaction. The unique
// external id is the dedupe key: redelivery of a settled record returns the
// prior outcome without touching any balance, while redelivery of a record
// whose credit never committed resumes it. A transaction matching exactly
// one pending intent credits it atomically; zero or multiple matches park
// the record with an error note and credit nothing.
func (s *TopupService) ProcessNotification(ctx context.Context, n ExternalNotification) (models.ExternalTransaction, error) {
	if n.ExternalID == "" {
		return models.ExternalTransaction{}, fmt.Errorf("external id is required: %w", domain.ErrInvalidAmount)
	}
	if n.ObservedAt.IsZero() {
		n.ObservedAt = s.now()
	}

	queries := s.store.Queries()
	record, err := queries.InsertExternalTransaction(ctx, repository.InsertExternalTransactionParams{
		ExternalID:  n.ExternalID,
		Description: n.Description,
		Amount:      n.Amount,
		ObservedAt:  n.ObservedAt,
	})
	if errors.Is(err, domain.ErrDuplicateExternalTransaction) {
		prior, getErr := queries.GetExternalTransaction(ctx, n.ExternalID)
		if getErr != nil {
			return models.ExternalTransaction{}, getErr
		}
		if prior.Processed || prior.ErrorNote != nil {
			return prior, nil
		}
		// The dedupe row committed but its credit never did: the process
		// crashed or storage failed between the two. Resume from the stored
		// row so the redelivery completes the credit instead of dropping it.
		record = prior
		n.Description = prior.Description
		n.Amount = prior.Amount
		n.ObservedAt = prior.ObservedAt
	} else if err != nil {
		return models.ExternalTransaction{}, err
	}

	intent, matchErr := s.matchIntent(ctx, n)
	if matchErr != nil {
		return s.park(ctx, record, matchErr)
	}

	if err := s.credit(ctx, n, intent); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			// A concurrent delivery of the same external id won the race.
			return queries.GetExternalTransaction(ctx, n.ExternalID)
		}
		return models.ExternalTransaction{}, err
	}

	s.events.Publish(ctx, notify.CreditAdded{
		AccountID:  intent.OwnerID,
		Amount:     n.Amount,
		IntentID:   intent.ID,
		OrderCode:  intent.OrderCode,
		ExternalID: n.ExternalID,
	})
	return queries.GetExternalTransaction(ctx, n.ExternalID)
}

// credit marks the external transaction processed, finalizes the intent and
// increments the owner's available balance in one transaction. Failures are
// retried a bounded number of times; an exhausted retry surfaces the error
// and leaves the record unprocessed, so the gateway's redelivery resumes it.
func (s *TopupService) credit(ctx context.Context, n ExternalNotification, intent models.PaymentIntent) error {
	var err error
	for attempt := 1; attempt <= creditAttempts; attempt++ {
		err = s.store.RunInTx(ctx, func(q repository.Querier) error {
			intentID := intent.ID
			if err := q.MarkExternalTransactionProcessed(ctx, repository.MarkExternalTransactionProcessedParams{
				ExternalID: n.ExternalID,
				IntentID:   &intentID,
			}); err != nil {
				return err
			}

			rows, err := q.FinalizePaymentIntent(ctx, repository.FinalizePaymentIntentParams{
				ID:     intent.ID,
				Status: domain.IntentStatusPaid,
			})
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "finalize payment intent"); err != nil {
				return err
			}

			if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
				AccountID:      intent.OwnerID,
				AvailableDelta: n.Amount,
			}); err != nil {
				return err
			}

			metadata, _ := json.Marshal(map[string]any{"external_id": n.ExternalID, "amount": n.Amount})
			return s.audit.Write(ctx, q, "payment_intent", intent.ID, nil, "paid", domain.IntentStatusPending, domain.IntentStatusPaid, metadata)
		})
		if err == nil || errors.Is(err, domain.ErrAlreadyTerminal) {
			return err
		}
		zap.L().Warn("credit transaction failed",
			zap.String("external_id", n.ExternalID),
			zap.String("intent_id", intent.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return err
}

// matchIntent resolves the description to exactly one pending intent, or
// explains why it could not.
func (s *TopupService) matchIntent(ctx context.Context, n ExternalNotification) (models.PaymentIntent, error) {
	suffixes := domain.ParseDescriptionSuffixes(n.Description)
	if len(suffixes) == 0 {
		return models.PaymentIntent{}, fmt.Errorf("no order code in description: %w", domain.ErrReconciliationAmbiguous)
	}

	queries := s.store.Queries()
	var (
		candidates []models.PaymentIntent
		seen       = map[uuid.UUID]struct{}{}
	)
	for _, suffix := range suffixes {
		intents, err := queries.FindPendingIntentsBySuffix(ctx, suffix, n.Amount)
		if err != nil {
			return models.PaymentIntent{}, err
		}
		for _, intent := range intents {
			if _, ok := seen[intent.ID]; ok {
				continue
			}
			seen[intent.ID] = struct{}{}
			candidates = append(candidates, intent)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return models.PaymentIntent{}, fmt.Errorf("no pending intent matches suffixes %s: %w",
			strings.Join(suffixes, ","), domain.ErrReconciliationAmbiguous)
	default:
		return models.PaymentIntent{}, fmt.Errorf("%d pending intents match suffixes %s: %w",
			len(candidates), strings.Join(suffixes, ","), domain.ErrReconciliationAmbiguous)
	}
}

// park records the reconciliation failure on the external transaction for
// manual operator resolution. No balance is touched.
func (s *TopupService) park(ctx context.Context, record models.ExternalTransaction, cause error) (models.ExternalTransaction, error) {
	note := cause.Error()
	if err := s.store.Queries().MarkExternalTransactionProcessed(ctx, repository.MarkExternalTransactionProcessedParams{
		ExternalID: record.ExternalID,
		ErrorNote:  &note,
	}); err != nil {
		return models.ExternalTransaction{}, err
	}

	reason := "no_match"
	if !strings.HasPrefix(note, "no ") {
		reason = "multiple_matches"
	}
	observability.IncrementUnmatchedTopup(reason)
	zap.L().Warn("external transaction parked for manual reconciliation",
		zap.String("external_id", record.ExternalID),
		zap.Int64("amount", record.Amount),
		zap.String("note", note),
	)

	parked, err := s.store.Queries().GetExternalTransaction(ctx, record.ExternalID)
	if err != nil {
		return models.ExternalTransaction{}, err
	}
	return parked, cause
}

// CancelIntent moves a pending intent to cancelled or failed. Terminal
// intents reject the transition.
func (s *TopupService) CancelIntent(ctx context.Context, intentID uuid.UUID, status string, actorID *uuid.UUID) (models.PaymentIntent, error) {
	if status != domain.IntentStatusCancelled && status != domain.IntentStatusFailed {
		return models.PaymentIntent{}, fmt.Errorf("invalid terminal status %q: %w", status, domain.ErrInvalidAmount)
	}

	var intent models.PaymentIntent
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetPaymentIntentForUpdate(ctx, intentID)
		if err != nil {
			return err
		}
		if current.Status != domain.IntentStatusPending {
			return fmt.Errorf("intent %s is %s: %w", intentID, current.Status, domain.ErrAlreadyTerminal)
		}

		rows, err := q.FinalizePaymentIntent(ctx, repository.FinalizePaymentIntentParams{ID: intentID, Status: status})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "cancel payment intent"); err != nil {
			return err
		}

		if err := s.audit.Write(ctx, q, "payment_intent", intentID, actorID, "cancel", domain.IntentStatusPending, status, nil); err != nil {
			return err
		}

		current.Status = status
		intent = current
		return nil
	})
	if err != nil {
		return models.PaymentIntent{}, err
	}
	return intent, nil
}

// SyncIntentStatus polls the gateway for a pending intent and applies an
// explicit negative signal. A paid signal is never applied from polling; the
// credit path always runs through ProcessNotification so dedupe holds.
func (s *TopupService) SyncIntentStatus(ctx context.Context, intentID uuid.UUID) (models.PaymentIntent, error) {
	intent, err := s.store.Queries().GetPaymentIntent(ctx, intentID)
	if err != nil {
		return models.PaymentIntent{}, err
	}
	if intent.Status != domain.IntentStatusPending {
		return intent, nil
	}

	status, err := s.gateway.PollIntentStatus(ctx, intent.OrderCode)
	if err != nil {
		return models.PaymentIntent{}, err
	}

	switch status {
	case gateway.IntentStatusCancelled:
		return s.CancelIntent(ctx, intentID, domain.IntentStatusCancelled, nil)
	case gateway.IntentStatusExpired:
		return s.CancelIntent(ctx, intentID, domain.IntentStatusFailed, nil)
	default:
		return intent, nil
	}
}

// GetIntent returns one payment intent.
func (s *TopupService) GetIntent(ctx context.Context, intentID uuid.UUID) (models.PaymentIntent, error) {
	return s.store.Queries().GetPaymentIntent(ctx, intentID)
}

// ListIntentsByOwner returns the owner's intents, newest first.
func (s *TopupService) ListIntentsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.PaymentIntent, error) {
	return s.store.Queries().ListPaymentIntentsByOwner(ctx, ownerID, limit, offset)
}

// ListUnmatched returns external transactions needing operator attention:
// parked records plus any whose credit never committed.
func (s *TopupService) ListUnmatched(ctx context.Context, limit, offset int32) ([]models.ExternalTransaction, error) {
	return s.store.Queries().ListUnmatchedExternalTransactions(ctx, limit, offset)
}
