package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Hoang7604119/mmostore-sub003/internal/service"
)

// Sweeper triggers one immediate release pass. The release worker implements
// it, so a manual sweep runs with the same batch size as the scheduled one.
type Sweeper interface {
	RunOnce(ctx context.Context) (released, attempted int, err error)
}

// HoldHandler serves the escrow ledger: owner-facing listings plus the
// operator surface for releasing, cancelling and sweeping holds.
type HoldHandler struct {
	holds   *service.HoldService
	sweeper Sweeper
}

func NewHoldHandler(holds *service.HoldService, sweeper Sweeper) *HoldHandler {
	return &HoldHandler{holds: holds, sweeper: sweeper}
}

// ListOwn handles GET /v1/holds.
func (h *HoldHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	limit, offset := paging(r)
	holds, err := h.holds.ListByOwner(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, holds)
}

// AdminList handles GET /v1/admin/holds?status=OPEN.
func (h *HoldHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-status", "status query parameter is required")
		return
	}

	limit, offset := paging(r)
	holds, err := h.holds.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, holds)
}

// AdminRelease handles POST /v1/admin/holds/{id}/release.
func (h *HoldHandler) AdminRelease(w http.ResponseWriter, r *http.Request) {
	holdID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid hold id")
		return
	}

	hold, err := h.holds.Release(r.Context(), holdID, "manual")
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, hold)
}

type cancelHoldRequest struct {
	Note string `json:"note"`
}

// AdminCancel handles POST /v1/admin/holds/{id}/cancel.
func (h *HoldHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	holdID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid hold id")
		return
	}

	var req cancelHoldRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
			return
		}
	}

	hold, err := h.holds.Cancel(r.Context(), holdID, req.Note, &actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, hold)
}

type sweepResponse struct {
	Released  int `json:"released"`
	Attempted int `json:"attempted"`
}

// AdminSweep handles POST /v1/admin/holds/sweep, triggering an immediate
// release sweep. Safe to race the scheduled worker.
func (h *HoldHandler) AdminSweep(w http.ResponseWriter, r *http.Request) {
	released, attempted, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, sweepResponse{Released: released, Attempted: attempted})
}
