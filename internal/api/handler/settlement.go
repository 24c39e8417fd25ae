package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/google/uuid"
)

// SettlementHandler serves the synchronous settlement call made by the
// order/inventory collaborator during checkout.
type SettlementHandler struct {
	settlement *service.SettlementService
}

func NewSettlementHandler(settlement *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: settlement}
}

type settleRequest struct {
	OrderID  uuid.UUID `json:"order_id"`
	BuyerID  uuid.UUID `json:"buyer_id"`
	SellerID uuid.UUID `json:"seller_id"`
	Total    int64     `json:"total"`
}

// Settle handles POST /v1/orders/settle. An insufficient-funds response
// obliges the caller to roll back its item reservation.
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}
	if req.OrderID == uuid.Nil || req.BuyerID == uuid.Nil || req.SellerID == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "order_id, buyer_id and seller_id are required")
		return
	}

	result, err := h.settlement.Settle(r.Context(), service.SettleRequest{
		OrderID:  req.OrderID,
		BuyerID:  req.BuyerID,
		SellerID: req.SellerID,
		Total:    req.Total,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
