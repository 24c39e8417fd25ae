package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/google/uuid"
)

// BalanceService exposes account balances and the audited operator
// adjustment path. All other balance movement happens inside the hold,
// top-up, withdrawal and settlement services.
type BalanceService struct {
	store  QueryStore
	events notify.Publisher
	audit  *AuditService
}

func NewBalanceService(store QueryStore, events notify.Publisher) *BalanceService {
	return &BalanceService{
		store:  store,
		events: events,
		audit:  NewAuditService(store),
	}
}

// Get returns the account's balances, provisioning a zero-balance account on
// first access. Identities arrive already authenticated, so an unknown id is
// a new wallet, not an error.
func (s *BalanceService) Get(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	queries := s.store.Queries()
	if err := queries.EnsureAccount(ctx, accountID); err != nil {
		return models.Account{}, err
	}
	return queries.GetAccount(ctx, accountID)
}

// AdminAdjustRequest is an operator-initiated signed delta on a user's
// spendable balance.
type AdminAdjustRequest struct {
	AccountID uuid.UUID
	Delta     int64
	Note      string
	ActorID   *uuid.UUID
}

// AdminAdjust applies a signed delta to available balance. The store guard
// keeps the balance non-negative, so a debit past zero fails with
// insufficient funds rather than clamping.
func (s *BalanceService) AdminAdjust(ctx context.Context, req AdminAdjustRequest) (models.Account, error) {
	if req.Delta == 0 {
		return models.Account{}, fmt.Errorf("zero adjustment: %w", domain.ErrInvalidAmount)
	}

	var account models.Account
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.EnsureAccount(ctx, req.AccountID); err != nil {
			return err
		}
		if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
			AccountID:      req.AccountID,
			AvailableDelta: req.Delta,
		}); err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]any{"delta": req.Delta, "note": req.Note})
		if err := s.audit.Write(ctx, q, "account", req.AccountID, req.ActorID, "admin_adjust", "", "", metadata); err != nil {
			return err
		}

		updated, err := q.GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		account = updated
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}

	s.events.Publish(ctx, notify.BalanceAdjusted{
		AccountID:      req.AccountID,
		AvailableDelta: req.Delta,
		Note:           req.Note,
	})
	return account, nil
}

// Stats returns aggregate balance totals across all accounts.
func (s *BalanceService) Stats(ctx context.Context) (repository.BalanceTotalsRow, error) {
	return s.store.Queries().BalanceTotals(ctx)
}
