package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/google/uuid"
)

// WithdrawalHandler serves payout requests and the operator decision
// surface.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type createWithdrawalRequest struct {
	Amount int64              `json:"amount"`
	Bank   models.BankDetails `json:"bank"`
}

// Create handles POST /v1/withdrawals.
func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}

	withdrawal, err := h.withdrawals.Request(r.Context(), service.RequestWithdrawalRequest{
		OwnerID: actorID,
		Amount:  req.Amount,
		Bank:    req.Bank,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, withdrawal)
}

// Get handles GET /v1/withdrawals/{id}.
func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	requestID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid withdrawal id")
		return
	}

	withdrawal, err := h.withdrawals.Get(r.Context(), requestID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if !isAdmin && withdrawal.OwnerID != actorID {
		RespondError(w, r, http.StatusNotFound, "ledger/not-found", "resource not found")
		return
	}
	RespondJSON(w, http.StatusOK, withdrawal)
}

// ListOwn handles GET /v1/withdrawals.
func (h *WithdrawalHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	limit, offset := paging(r)
	withdrawals, err := h.withdrawals.ListByOwner(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, withdrawals)
}

// AdminList handles GET /v1/admin/withdrawals?status=PENDING.
func (h *WithdrawalHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-status", "status query parameter is required")
		return
	}

	limit, offset := paging(r)
	withdrawals, err := h.withdrawals.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, withdrawals)
}

// AdminMarkProcessing handles POST /v1/admin/withdrawals/{id}/process.
func (h *WithdrawalHandler) AdminMarkProcessing(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	requestID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid withdrawal id")
		return
	}

	withdrawal, err := h.withdrawals.MarkProcessing(r.Context(), requestID, actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, withdrawal)
}

type decideWithdrawalRequest struct {
	Note string `json:"note"`
}

// AdminApprove handles POST /v1/admin/withdrawals/{id}/approve.
func (h *WithdrawalHandler) AdminApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.withdrawals.Approve)
}

// AdminReject handles POST /v1/admin/withdrawals/{id}/reject.
func (h *WithdrawalHandler) AdminReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.withdrawals.Reject)
}

func (h *WithdrawalHandler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, requestID, operatorID uuid.UUID, note string) (models.WithdrawalRequest, error)) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	requestID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid withdrawal id")
		return
	}

	var req decideWithdrawalRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
			return
		}
	}

	withdrawal, err := fn(r.Context(), requestID, actorID, req.Note)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, withdrawal)
}
