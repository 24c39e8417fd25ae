package service

import (
	"context"
	"fmt"

	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"go.uber.org/zap"
)

const reconciliationPageSize = 500

// ReconciliationService verifies the core ledger invariant: every account's
// pending balance equals the sum of its open holds.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run scans every account and reports divergence between the pending balance
// and the open-hold sum. Mismatches are counted and logged for operator
// follow-up; nothing is auto-corrected.
func (s *ReconciliationService) Run(ctx context.Context) (mismatches int, err error) {
	queries := s.store.Queries()

	for offset := int32(0); ; offset += reconciliationPageSize {
		ids, err := queries.ListAccountIDs(ctx, reconciliationPageSize, offset)
		if err != nil {
			return mismatches, fmt.Errorf("list accounts: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			account, err := queries.GetAccount(ctx, id)
			if err != nil {
				return mismatches, fmt.Errorf("get account %s: %w", id, err)
			}
			openSum, err := queries.SumOpenHoldsByOwner(ctx, id)
			if err != nil {
				return mismatches, fmt.Errorf("sum open holds %s: %w", id, err)
			}

			if account.Pending != openSum {
				mismatches++
				observability.IncrementPendingImbalance()
				zap.L().Error("CRITICAL: pending balance diverged from open holds",
					zap.String("account_id", id.String()),
					zap.Int64("pending", account.Pending),
					zap.Int64("open_hold_sum", openSum),
				)
			}
		}
	}

	if mismatches == 0 {
		zap.L().Info("pending balances consistent with open holds")
	}
	return mismatches, nil
}
