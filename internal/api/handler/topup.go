package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
)

// TopupHandler serves the top-up intent lifecycle.
type TopupHandler struct {
	topups *service.TopupService
}

func NewTopupHandler(topups *service.TopupService) *TopupHandler {
	return &TopupHandler{topups: topups}
}

type createTopupRequest struct {
	Amount int64 `json:"amount"`
}

// Create handles POST /v1/topups.
func (h *TopupHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req createTopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}

	intent, err := h.topups.CreateIntent(r.Context(), actorID, req.Amount)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, intent)
}

// Get handles GET /v1/topups/{id}. Admins can read any intent; owners only
// their own.
func (h *TopupHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	intentID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid intent id")
		return
	}

	intent, err := h.topups.GetIntent(r.Context(), intentID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if !isAdmin && intent.OwnerID != actorID {
		RespondError(w, r, http.StatusNotFound, "ledger/not-found", "resource not found")
		return
	}
	RespondJSON(w, http.StatusOK, intent)
}

// ListOwn handles GET /v1/topups.
func (h *TopupHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	limit, offset := paging(r)
	intents, err := h.topups.ListIntentsByOwner(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, intents)
}

// Cancel handles POST /v1/topups/{id}/cancel.
func (h *TopupHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	intentID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid intent id")
		return
	}

	intent, err := h.topups.GetIntent(r.Context(), intentID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if !isAdmin && intent.OwnerID != actorID {
		RespondError(w, r, http.StatusNotFound, "ledger/not-found", "resource not found")
		return
	}

	cancelled, err := h.topups.CancelIntent(r.Context(), intentID, domain.IntentStatusCancelled, &actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cancelled)
}

// AdminListUnmatched handles GET /v1/admin/topups/unmatched, listing
// external transactions parked for manual reconciliation.
func (h *TopupHandler) AdminListUnmatched(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	txs, err := h.topups.ListUnmatched(r.Context(), limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, txs)
}
