package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WebhookHandler consumes asynchronous gateway and bank-feed notifications.
// Redeliveries are expected; the ledger dedupes on the external id.
type WebhookHandler struct {
	topups  *service.TopupService
	hmacKey []byte
	skipSig bool
}

func NewWebhookHandler(topups *service.TopupService, hmacKey string, skipSignature bool) *WebhookHandler {
	return &WebhookHandler{
		topups:  topups,
		hmacKey: []byte(hmacKey),
		skipSig: skipSignature,
	}
}

// gatewayNotification is the raw feed payload. Amount arrives in currency
// units as banks report it; the ledger stores minor units.
type gatewayNotification struct {
	ExternalID  string          `json:"external_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

type webhookResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
}

// HandleGatewayNotification handles POST /v1/webhooks/gateway. Ambiguous
// notifications are acknowledged with 200 so the gateway stops retrying; the
// record is parked for an operator.
func (h *WebhookHandler) HandleGatewayNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
		return
	}

	if !h.verifyHMAC(body, r.Header.Get("X-Webhook-Signature")) {
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "invalid signature")
		return
	}

	var payload gatewayNotification
	if err := json.Unmarshal(body, &payload); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON payload")
		return
	}

	record, err := h.topups.ProcessNotification(r.Context(), service.ExternalNotification{
		ExternalID:  payload.ExternalID,
		Description: payload.Description,
		Amount:      domain.FromDecimal(payload.Amount),
		ObservedAt:  payload.Timestamp,
	})
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationAmbiguous) {
			RespondJSON(w, http.StatusOK, webhookResponse{
				ExternalID: record.ExternalID,
				Status:     "parked",
				Note:       "queued for manual reconciliation",
			})
			return
		}
		zap.L().Error("process gateway notification failed",
			zap.String("external_id", payload.ExternalID),
			zap.Error(err),
		)
		RespondServiceError(w, r, err)
		return
	}

	status := "credited"
	if record.ErrorNote != nil {
		status = "parked"
	}
	RespondJSON(w, http.StatusOK, webhookResponse{ExternalID: record.ExternalID, Status: status})
}

func (h *WebhookHandler) verifyHMAC(payload []byte, signature string) bool {
	if h.skipSig {
		return true
	}
	if len(h.hmacKey) == 0 || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, h.hmacKey)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
