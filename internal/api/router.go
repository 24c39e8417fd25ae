package api

import (
	"net/http"

	"github.com/Hoang7604119/mmostore-sub003/internal/api/handler"
	"github.com/Hoang7604119/mmostore-sub003/internal/api/middleware"
	"github.com/Hoang7604119/mmostore-sub003/internal/api/spec"
	"github.com/Hoang7604119/mmostore-sub003/internal/config"
	"github.com/Hoang7604119/mmostore-sub003/internal/idempotency"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services groups the ledger services the router exposes. Sweeper is the
// release worker, shared so the manual sweep route uses the configured batch
// size.
type Services struct {
	Balances    *service.BalanceService
	Holds       *service.HoldService
	Topups      *service.TopupService
	Withdrawals *service.WithdrawalService
	Settlement  *service.SettlementService
	Sweeper     handler.Sweeper
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *pgxpool.Pool
	redis  redis.Cmdable
	idem   *idempotency.Store
	svcs   Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redis redis.Cmdable, idem *idempotency.Store, svcs Services) *Router {
	return &Router{cfg: cfg, logger: logger, db: db, redis: redis, idem: idem, svcs: svcs}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	balanceHandler := handler.NewBalanceHandler(api.svcs.Balances, api.svcs.Holds, api.cfg.HoldLookahead)
	holdHandler := handler.NewHoldHandler(api.svcs.Holds, api.svcs.Sweeper)
	topupHandler := handler.NewTopupHandler(api.svcs.Topups)
	withdrawalHandler := handler.NewWithdrawalHandler(api.svcs.Withdrawals)
	settlementHandler := handler.NewSettlementHandler(api.svcs.Settlement)
	webhookHandler := handler.NewWebhookHandler(api.svcs.Topups, api.cfg.WebhookHMACKey, api.cfg.WebhookSkipSignature)

	// Public routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

		r.Post("/v1/webhooks/gateway", webhookHandler.HandleGatewayNotification)
	})

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/balance", balanceHandler.GetOwn)
		r.Get("/v1/holds", holdHandler.ListOwn)

		r.Get("/v1/topups", topupHandler.ListOwn)
		r.Get("/v1/topups/{id}", topupHandler.Get)
		r.With(middleware.IdempotencyMiddleware(api.idem, api.logger)).
			Post("/v1/topups", topupHandler.Create)
		r.Post("/v1/topups/{id}/cancel", topupHandler.Cancel)

		r.Get("/v1/withdrawals", withdrawalHandler.ListOwn)
		r.Get("/v1/withdrawals/{id}", withdrawalHandler.Get)
		r.With(middleware.IdempotencyMiddleware(api.idem, api.logger)).
			Post("/v1/withdrawals", withdrawalHandler.Create)

		r.With(middleware.IdempotencyMiddleware(api.idem, api.logger)).
			Post("/v1/orders/settle", settlementHandler.Settle)

		// Operator surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))

			r.Get("/v1/admin/stats", balanceHandler.AdminStats)
			r.Get("/v1/admin/accounts/{id}", balanceHandler.AdminGet)
			r.Post("/v1/admin/accounts/{id}/adjust", balanceHandler.AdminAdjust)

			r.Get("/v1/admin/holds", holdHandler.AdminList)
			r.Post("/v1/admin/holds/sweep", holdHandler.AdminSweep)
			r.Post("/v1/admin/holds/{id}/release", holdHandler.AdminRelease)
			r.Post("/v1/admin/holds/{id}/cancel", holdHandler.AdminCancel)

			r.Get("/v1/admin/withdrawals", withdrawalHandler.AdminList)
			r.Post("/v1/admin/withdrawals/{id}/process", withdrawalHandler.AdminMarkProcessing)
			r.Post("/v1/admin/withdrawals/{id}/approve", withdrawalHandler.AdminApprove)
			r.Post("/v1/admin/withdrawals/{id}/reject", withdrawalHandler.AdminReject)

			r.Get("/v1/admin/topups/unmatched", topupHandler.AdminListUnmatched)
		})
	})

	return r
}
