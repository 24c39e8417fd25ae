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

// SettlementService moves money at purchase completion: the buyer's
// spendable balance is debited and the seller's proceeds are escrowed as a
// hold, both inside a single transaction. The inventory collaborator calls
// Settle synchronously during checkout and rolls back its reservation when
// the debit fails.
type SettlementService struct {
	store  QueryStore
	holds  *HoldService
	events notify.Publisher
	audit  *AuditService
}

func NewSettlementService(store QueryStore, holds *HoldService, events notify.Publisher) *SettlementService {
	return &SettlementService{
		store:  store,
		holds:  holds,
		events: events,
		audit:  NewAuditService(store),
	}
}

// SettleRequest holds the parameters supplied by the order workflow.
type SettleRequest struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	SellerID uuid.UUID
	Total    int64
}

// SettleResult reports the settlement outcome.
type SettleResult struct {
	OrderID uuid.UUID   `json:"order_id"`
	Hold    models.Hold `json:"hold"`
}

// Settle debits the buyer and escrows the seller's proceeds. Either both
// effects commit or neither does: an insufficient buyer balance rolls the
// whole settlement back.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (SettleResult, error) {
	if req.Total <= 0 {
		return SettleResult{}, fmt.Errorf("order total %d: %w", req.Total, domain.ErrInvalidAmount)
	}
	if req.BuyerID == req.SellerID {
		return SettleResult{}, fmt.Errorf("buyer and seller are the same account: %w", domain.ErrInvalidAmount)
	}

	var hold models.Hold
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.EnsureAccount(ctx, req.BuyerID); err != nil {
			return err
		}
		if err := q.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
			AccountID:      req.BuyerID,
			AvailableDelta: -req.Total,
		}); err != nil {
			return err
		}

		orderID := req.OrderID
		created, err := s.holds.createInTx(ctx, q, CreateHoldRequest{
			OwnerID: req.SellerID,
			Amount:  req.Total,
			Reason:  domain.HoldReasonSaleCommission,
			OrderID: &orderID,
		})
		if err != nil {
			return err
		}
		hold = created

		metadata, _ := json.Marshal(map[string]any{
			"buyer_id":  req.BuyerID,
			"seller_id": req.SellerID,
			"total":     req.Total,
		})
		return s.audit.Write(ctx, q, "order", req.OrderID, nil, "settle", "", "", metadata)
	})
	if err != nil {
		return SettleResult{}, err
	}

	s.holds.publishCreated(ctx, hold)
	s.events.Publish(ctx, notify.OrderSettled{
		OrderID:  req.OrderID,
		BuyerID:  req.BuyerID,
		SellerID: req.SellerID,
		Amount:   req.Total,
		HoldID:   hold.ID,
	})
	return SettleResult{OrderID: req.OrderID, Hold: hold}, nil
}
