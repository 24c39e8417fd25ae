package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/google/uuid"
)

// WithdrawalBounds is the configured [min, max] range for a single
// withdrawal request.
type WithdrawalBounds struct {
	Min int64
	Max int64
}

// WithdrawalService debits spendable balance at request time, parks the
// funds until an operator decides, and restores them on rejection.
type WithdrawalService struct {
	store  QueryStore
	events notify.Publisher
	audit  *AuditService
	bounds WithdrawalBounds
	now    func() time.Time
}

func NewWithdrawalService(store QueryStore, events notify.Publisher, bounds WithdrawalBounds) *WithdrawalService {
	return &WithdrawalService{
		store:  store,
		events: events,
		audit:  NewAuditService(store),
		bounds: bounds,
		now:    time.Now,
	}
}

// RequestWithdrawalRequest holds the parameters for a payout request.
type RequestWithdrawalRequest struct {
	OwnerID uuid.UUID
	Amount  int64
	Bank    models.BankDetails
}

func (r RequestWithdrawalRequest) validateBank() error {
	if r.Bank.BankName == "" || r.Bank.AccountNumber == "" || r.Bank.AccountName == "" {
		return fmt.Errorf("bank details are incomplete: %w", domain.ErrInvalidAmount)
	}
	return nil
}

// Request validates bounds, enforces the one-outstanding-request rule, and
// debits available balance immediately. The debit, the request row and the
// audit entry commit as one unit.
func (s *WithdrawalService) Request(ctx context.Context, req RequestWithdrawalRequest) (models.WithdrawalRequest, error) {
	if req.Amount < s.bounds.Min || req.Amount > s.bounds.Max {
		return models.WithdrawalRequest{}, fmt.Errorf("amount %d outside [%d, %d]: %w",
			req.Amount, s.bounds.Min, s.bounds.Max, domain.ErrInvalidAmount)
	}
	if err := req.validateBank(); err != nil {
		return models.WithdrawalRequest{}, err
	}

	var withdrawal models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.EnsureAccount(ctx, req.OwnerID); err != nil {
			return err
		}

		open, err := q.HasOpenWithdrawal(ctx, req.OwnerID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("account %s: %w", req.OwnerID, domain.ErrConflictingRequest)
		}

		if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
			AccountID:      req.OwnerID,
			AvailableDelta: -req.Amount,
		}); err != nil {
			return err
		}

		created, err := q.CreateWithdrawal(ctx, repository.CreateWithdrawalParams{
			ID:      uuid.New(),
			OwnerID: req.OwnerID,
			Amount:  req.Amount,
			Bank:    req.Bank,
		})
		if err != nil {
			return err
		}
		withdrawal = created

		metadata, _ := json.Marshal(map[string]any{"amount": req.Amount, "bank": req.Bank.BankName})
		return s.audit.Write(ctx, q, "withdrawal", created.ID, nil, "request", "", domain.WithdrawalStatusPending, metadata)
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.events.Publish(ctx, notify.WithdrawalRequested{
		WithdrawalID: withdrawal.ID,
		AccountID:    withdrawal.OwnerID,
		Amount:       withdrawal.Amount,
	})
	return withdrawal, nil
}

// MarkProcessing claims a pending request for an operator. Optional step;
// approval and rejection accept both pending and processing requests.
func (s *WithdrawalService) MarkProcessing(ctx context.Context, requestID uuid.UUID, operatorID uuid.UUID) (models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status != domain.WithdrawalStatusPending {
			return fmt.Errorf("withdrawal %s is %s: %w", requestID, current.Status, domain.ErrAlreadyTerminal)
		}

		rows, err := q.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
			ID:         requestID,
			FromStatus: []string{domain.WithdrawalStatusPending},
			Status:     domain.WithdrawalStatusProcessing,
			OperatorID: &operatorID,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "mark withdrawal processing"); err != nil {
			return err
		}

		if err := s.audit.Write(ctx, q, "withdrawal", requestID, &operatorID, "processing",
			domain.WithdrawalStatusPending, domain.WithdrawalStatusProcessing, nil); err != nil {
			return err
		}

		current.Status = domain.WithdrawalStatusProcessing
		current.OperatorID = &operatorID
		withdrawal = current
		return nil
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	return withdrawal, nil
}

// Approve completes a request. No balance effect: the funds left the
// spendable balance at request time and are now considered paid out.
// Approving twice is an error, not a replay.
func (s *WithdrawalService) Approve(ctx context.Context, requestID uuid.UUID, operatorID uuid.UUID, note string) (models.WithdrawalRequest, error) {
	withdrawal, err := s.finalize(ctx, requestID, operatorID, note, domain.WithdrawalStatusCompleted, false)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.events.Publish(ctx, notify.WithdrawalApproved{
		WithdrawalID: withdrawal.ID,
		AccountID:    withdrawal.OwnerID,
		Amount:       withdrawal.Amount,
	})
	return withdrawal, nil
}

// Reject refuses a request and re-credits the debited amount, all in one
// transaction. The account can then submit a new request.
func (s *WithdrawalService) Reject(ctx context.Context, requestID uuid.UUID, operatorID uuid.UUID, note string) (models.WithdrawalRequest, error) {
	withdrawal, err := s.finalize(ctx, requestID, operatorID, note, domain.WithdrawalStatusRejected, true)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.events.Publish(ctx, notify.WithdrawalRejected{
		WithdrawalID: withdrawal.ID,
		AccountID:    withdrawal.OwnerID,
		Amount:       withdrawal.Amount,
		Reason:       note,
	})
	return withdrawal, nil
}

func (s *WithdrawalService) finalize(ctx context.Context, requestID uuid.UUID, operatorID uuid.UUID, note, status string, refund bool) (models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if domain.WithdrawalTerminal(current.Status) {
			return fmt.Errorf("withdrawal %s is %s: %w", requestID, current.Status, domain.ErrAlreadyTerminal)
		}

		processedAt := s.now()
		rows, err := q.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
			ID:          requestID,
			FromStatus:  []string{domain.WithdrawalStatusPending, domain.WithdrawalStatusProcessing},
			Status:      status,
			Note:        textParam(note),
			OperatorID:  &operatorID,
			ProcessedAt: &processedAt,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "finalize withdrawal"); err != nil {
			return err
		}

		if refund {
			if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
				AccountID:      current.OwnerID,
				AvailableDelta: current.Amount,
			}); err != nil {
				return err
			}
		}

		if err := s.audit.Write(ctx, q, "withdrawal", requestID, &operatorID, "finalize", current.Status, status, nil); err != nil {
			return err
		}

		current.Status = status
		current.OperatorID = &operatorID
		current.ProcessedAt = &processedAt
		if note != "" {
			current.Note = textParam(note)
		}
		withdrawal = current
		return nil
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	return withdrawal, nil
}

// Get returns a single withdrawal request.
func (s *WithdrawalService) Get(ctx context.Context, requestID uuid.UUID) (models.WithdrawalRequest, error) {
	return s.store.Queries().GetWithdrawal(ctx, requestID)
}

// ListByOwner returns the owner's requests, newest first.
func (s *WithdrawalService) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error) {
	return s.store.Queries().ListWithdrawalsByOwner(ctx, ownerID, limit, offset)
}

// ListByStatus returns requests filtered by status, newest first. The
// pending queue size is exported as a gauge when listing pending requests.
func (s *WithdrawalService) ListByStatus(ctx context.Context, status string, limit, offset int32) ([]models.WithdrawalRequest, error) {
	requests, err := s.store.Queries().ListWithdrawalsByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	if status == domain.WithdrawalStatusPending {
		observability.SetWithdrawalQueueSize(int64(len(requests)))
	}
	return requests, nil
}
