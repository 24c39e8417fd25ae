package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
)

// BalanceHandler serves balance reads, aggregate statistics and the audited
// operator adjustment path.
type BalanceHandler struct {
	balances  *service.BalanceService
	holds     *service.HoldService
	lookahead time.Duration
}

func NewBalanceHandler(balances *service.BalanceService, holds *service.HoldService, lookahead time.Duration) *BalanceHandler {
	return &BalanceHandler{balances: balances, holds: holds, lookahead: lookahead}
}

// GetOwn handles GET /v1/balance.
func (h *BalanceHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	account, err := h.balances.Get(r.Context(), actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// AdminGet handles GET /v1/admin/accounts/{id}.
func (h *BalanceHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid account id")
		return
	}

	account, err := h.balances.Get(r.Context(), accountID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

type adjustRequest struct {
	Delta int64  `json:"delta"`
	Note  string `json:"note"`
}

// AdminAdjust handles POST /v1/admin/accounts/{id}/adjust.
func (h *BalanceHandler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	accountID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid account id")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}

	account, err := h.balances.AdminAdjust(r.Context(), service.AdminAdjustRequest{
		AccountID: accountID,
		Delta:     req.Delta,
		Note:      req.Note,
		ActorID:   &actorID,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

type statsResponse struct {
	Accounts       int64                 `json:"accounts"`
	TotalAvailable int64                 `json:"total_available"`
	TotalPending   int64                 `json:"total_pending"`
	PendingShare   string                `json:"pending_share_percent"`
	Holds          service.MaturityStats `json:"holds"`
}

// AdminStats handles GET /v1/admin/stats.
func (h *BalanceHandler) AdminStats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.balances.Stats(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	maturity, err := h.holds.Maturity(r.Context(), h.lookahead)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, statsResponse{
		Accounts:       totals.Accounts,
		TotalAvailable: totals.TotalAvailable,
		TotalPending:   totals.TotalPending,
		PendingShare:   domain.NewMoney(totals.TotalPending).Percent(totals.TotalAvailable + totals.TotalPending).String(),
		Holds:          maturity,
	})
}
