package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/api"
	"github.com/Hoang7604119/mmostore-sub003/internal/api/middleware"
	"github.com/Hoang7604119/mmostore-sub003/internal/config"
	"github.com/Hoang7604119/mmostore-sub003/internal/domain"
	"github.com/Hoang7604119/mmostore-sub003/internal/gateway"
	"github.com/Hoang7604119/mmostore-sub003/internal/idempotency"
	"github.com/Hoang7604119/mmostore-sub003/internal/models"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/Hoang7604119/mmostore-sub003/internal/testutil/dblock"
	"github.com/Hoang7604119/mmostore-sub003/internal/worker"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "mmostore-ledger-test"
	testJWTAudience = "ledger-api-test"
	testHMACKey     = "test-webhook-hmac-key"
)

func TestMain(m *testing.M) {
	release := dblock.Acquire()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	code := m.Run()
	release()
	os.Exit(code)
}

type apiEnv struct {
	handler http.Handler
	store   *repository.MemoryStore
	gateway *gateway.MockGateway
}

func setupAPI() *apiEnv {
	store := repository.NewMemoryStore()
	gw := gateway.NewMockGateway()
	events := notify.NopPublisher{}

	holds := service.NewHoldService(store, events, 3)
	svcs := api.Services{
		Balances:    service.NewBalanceService(store, events),
		Holds:       holds,
		Topups:      service.NewTopupService(store, gw, events),
		Withdrawals: service.NewWithdrawalService(store, events, service.WithdrawalBounds{Min: 50_000, Max: 100_000_000}),
		Settlement:  service.NewSettlementService(store, holds, events),
		Sweeper:     worker.NewReleaseWorker(holds).WithBatchSize(500),
	}

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		WebhookHMACKey:     testHMACKey,
		HoldDurationDays:   3,
		HoldLookahead:      24 * time.Hour,
		WithdrawMin:        50_000,
		WithdrawMax:        100_000_000,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	idemStore := idempotency.NewStore(nil, store, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), nil, nil, idemStore, svcs)
	return &apiEnv{handler: router.Routes(), store: store, gateway: gw}
}

func generateTestToken(userID string) string {
	return generateTokenWithRole(userID, "user")
}

func generateTokenWithRole(userID, role string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func (e *apiEnv) do(t *testing.T, method, path, token string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) fund(t *testing.T, accountID uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.Queries().EnsureAccount(ctx, accountID))
	require.NoError(t, e.store.Queries().ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
		AccountID:      accountID,
		AvailableDelta: amount,
	}))
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testHMACKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (e *apiEnv) postWebhook(t *testing.T, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/webhooks/gateway", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signWebhook(raw))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	env := setupAPI()

	w := env.do(t, "GET", "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/readyz", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRFC7807ProblemDetails(t *testing.T) {
	env := setupAPI()

	w := env.do(t, "GET", "/v1/balance", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/balance", body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestGetOwnBalanceProvisionsAccount(t *testing.T) {
	env := setupAPI()
	userID := uuid.New()
	token := generateTestToken(userID.String())

	w := env.do(t, "GET", "/v1/balance", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var account models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, userID, account.ID)
	assert.Zero(t, account.Available)
	assert.Zero(t, account.Pending)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := setupAPI()

	w := env.do(t, "GET", "/v1/admin/stats", generateTestToken(uuid.New().String()), nil, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "GET", "/v1/admin/stats", generateTokenWithRole(uuid.New().String(), "admin"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestTopupLifecycle(t *testing.T) {
	env := setupAPI()
	userID := uuid.New()
	token := generateTestToken(userID.String())

	w := env.do(t, "POST", "/v1/topups", token, map[string]any{"amount": 100_000},
		map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)

	var intent models.PaymentIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.Equal(t, domain.IntentStatusPending, intent.Status)
	assert.NotEmpty(t, intent.OrderCode)
	assert.NotEmpty(t, intent.CheckoutRef)

	// The bank transfer arrives with the order code in its description and
	// the amount in currency units.
	w = env.postWebhook(t, map[string]any{
		"external_id": "BANK-100",
		"description": "NAP TIEN " + intent.OrderCode,
		"amount":      "1000.00",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var ack map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "credited", ack["status"])

	w = env.do(t, "GET", "/v1/balance", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var account models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(100_000), account.Available)

	// Redelivery of the same external transaction credits nothing.
	w = env.postWebhook(t, map[string]any{
		"external_id": "BANK-100",
		"description": "NAP TIEN " + intent.OrderCode,
		"amount":      "1000.00",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/v1/balance", token, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(100_000), account.Available)
}

func TestTopupRequiresIdempotencyKey(t *testing.T) {
	env := setupAPI()
	token := generateTestToken(uuid.New().String())

	w := env.do(t, "POST", "/v1/topups", token, map[string]any{"amount": 100_000}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTopupIdempotentReplay(t *testing.T) {
	env := setupAPI()
	userID := uuid.New()
	token := generateTestToken(userID.String())
	key := uuid.New().String()

	first := env.do(t, "POST", "/v1/topups", token, map[string]any{"amount": 100_000},
		map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, "POST", "/v1/topups", token, map[string]any{"amount": 100_000},
		map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.NotEmpty(t, second.Header().Get("X-Idempotent-Replay"))

	w := env.do(t, "GET", "/v1/topups", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var intents []models.PaymentIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intents))
	assert.Len(t, intents, 1)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := setupAPI()

	raw := []byte(`{"external_id":"BANK-200","amount":1000}`)
	req := httptest.NewRequest("POST", "/v1/webhooks/gateway", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookParksUnmatchedNotification(t *testing.T) {
	env := setupAPI()

	w := env.postWebhook(t, map[string]any{
		"external_id": "BANK-300",
		"description": "transfer without any code",
		"amount":      "100.00",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var ack map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "parked", ack["status"])

	admin := generateTokenWithRole(uuid.New().String(), "admin")
	list := env.do(t, "GET", "/v1/admin/topups/unmatched", admin, nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var parked []models.ExternalTransaction
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &parked))
	require.Len(t, parked, 1)
	assert.Equal(t, "BANK-300", parked[0].ExternalID)
}

func TestWithdrawalLifecycle(t *testing.T) {
	env := setupAPI()
	userID := uuid.New()
	token := generateTestToken(userID.String())
	admin := generateTokenWithRole(uuid.New().String(), "admin")
	env.fund(t, userID, 200_000)

	payload := map[string]any{
		"amount": 150_000,
		"bank": map[string]string{
			"bank_name":      "Vietcombank",
			"account_number": "0123456789",
			"account_name":   "NGUYEN VAN A",
		},
	}
	w := env.do(t, "POST", "/v1/withdrawals", token, payload,
		map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)

	var withdrawal models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &withdrawal))
	assert.Equal(t, domain.WithdrawalStatusPending, withdrawal.Status)

	// The debit is immediate.
	var account models.Account
	w = env.do(t, "GET", "/v1/balance", token, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(50_000), account.Available)

	// A second request while one is open conflicts.
	w = env.do(t, "POST", "/v1/withdrawals", token, payload,
		map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusConflict, w.Code)

	// Rejection restores the balance.
	w = env.do(t, "POST", "/v1/admin/withdrawals/"+withdrawal.ID.String()+"/reject", admin,
		map[string]any{"note": "account name mismatch"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/v1/balance", token, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(200_000), account.Available)
}

func TestWithdrawalBelowMinimumRejected(t *testing.T) {
	env := setupAPI()
	userID := uuid.New()
	token := generateTestToken(userID.String())
	env.fund(t, userID, 200_000)

	w := env.do(t, "POST", "/v1/withdrawals", token, map[string]any{
		"amount": 49_999,
		"bank": map[string]string{
			"bank_name":      "Vietcombank",
			"account_number": "0123456789",
			"account_name":   "NGUYEN VAN A",
		},
	}, map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderSettlement(t *testing.T) {
	env := setupAPI()
	buyerID := uuid.New()
	sellerID := uuid.New()
	buyerToken := generateTestToken(buyerID.String())
	sellerToken := generateTestToken(sellerID.String())
	env.fund(t, buyerID, 80_000)

	w := env.do(t, "POST", "/v1/orders/settle", buyerToken, map[string]any{
		"order_id":  uuid.New().String(),
		"buyer_id":  buyerID.String(),
		"seller_id": sellerID.String(),
		"total":     50_000,
	}, map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusOK, w.Code)

	var result service.SettleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.HoldStatusOpen, result.Hold.Status)
	assert.Equal(t, int64(50_000), result.Hold.Amount)

	var account models.Account
	w = env.do(t, "GET", "/v1/balance", buyerToken, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(30_000), account.Available)

	w = env.do(t, "GET", "/v1/balance", sellerToken, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(0), account.Available)
	assert.Equal(t, int64(50_000), account.Pending)

	// The seller sees the escrow hold.
	w = env.do(t, "GET", "/v1/holds", sellerToken, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var holds []models.Hold
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &holds))
	require.Len(t, holds, 1)
	assert.Equal(t, domain.HoldReasonSaleCommission, holds[0].Reason)
}

func TestOrderSettlementInsufficientFunds(t *testing.T) {
	env := setupAPI()
	buyerID := uuid.New()
	sellerID := uuid.New()
	token := generateTestToken(buyerID.String())
	env.fund(t, buyerID, 10_000)

	w := env.do(t, "POST", "/v1/orders/settle", token, map[string]any{
		"order_id":  uuid.New().String(),
		"buyer_id":  buyerID.String(),
		"seller_id": sellerID.String(),
		"total":     50_000,
	}, map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var account models.Account
	w = env.do(t, "GET", "/v1/balance", token, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(10_000), account.Available)
}

func TestAdminHoldReleaseAndStats(t *testing.T) {
	env := setupAPI()
	buyerID := uuid.New()
	sellerID := uuid.New()
	buyerToken := generateTestToken(buyerID.String())
	admin := generateTokenWithRole(uuid.New().String(), "admin")
	env.fund(t, buyerID, 50_000)

	w := env.do(t, "POST", "/v1/orders/settle", buyerToken, map[string]any{
		"order_id":  uuid.New().String(),
		"buyer_id":  buyerID.String(),
		"seller_id": sellerID.String(),
		"total":     50_000,
	}, map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusOK, w.Code)
	var result service.SettleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	w = env.do(t, "GET", "/v1/admin/stats", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, float64(50_000), stats["total_pending"])

	w = env.do(t, "POST", "/v1/admin/holds/"+result.Hold.ID.String()+"/release", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hold models.Hold
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hold))
	assert.Equal(t, domain.HoldStatusReleased, hold.Status)

	sellerToken := generateTestToken(sellerID.String())
	var account models.Account
	w = env.do(t, "GET", "/v1/balance", sellerToken, nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(50_000), account.Available)
	assert.Equal(t, int64(0), account.Pending)

	// Releasing again replays the terminal state.
	w = env.do(t, "POST", "/v1/admin/holds/"+result.Hold.ID.String()+"/release", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminSweepReleasesMaturedHolds(t *testing.T) {
	env := setupAPI()
	ctx := context.Background()
	ownerID := uuid.New()
	admin := generateTokenWithRole(uuid.New().String(), "admin")

	queries := env.store.Queries()
	require.NoError(t, queries.EnsureAccount(ctx, ownerID))
	_, err := queries.CreateHold(ctx, repository.CreateHoldParams{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Amount:           40_000,
		Reason:           domain.HoldReasonSaleCommission,
		ScheduledRelease: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, queries.ApplyBalanceDelta(ctx, repository.ApplyBalanceDeltaParams{
		AccountID:    ownerID,
		PendingDelta: 40_000,
	}))

	w := env.do(t, "POST", "/v1/admin/holds/sweep", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sweep map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sweep))
	assert.Equal(t, 1, sweep["released"])
	assert.Equal(t, 1, sweep["attempted"])

	ownerToken := generateTestToken(ownerID.String())
	var account models.Account
	w = env.do(t, "GET", "/v1/balance", ownerToken, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(40_000), account.Available)
	assert.Equal(t, int64(0), account.Pending)
}

func TestTopupForeignIntentHidden(t *testing.T) {
	env := setupAPI()
	owner := generateTestToken(uuid.New().String())
	stranger := generateTestToken(uuid.New().String())

	w := env.do(t, "POST", "/v1/topups", owner, map[string]any{"amount": 60_000},
		map[string]string{"Idempotency-Key": uuid.New().String()})
	require.Equal(t, http.StatusCreated, w.Code)
	var intent models.PaymentIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))

	w = env.do(t, "GET", "/v1/topups/"+intent.ID.String(), stranger, nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/v1/topups/"+intent.ID.String(), owner, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
