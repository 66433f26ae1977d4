package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/middleware"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Health          *HealthHandler
	Purchase        *PurchaseHandler
	Webhook         *WebhookHandler
	Payout          *PayoutHandler
	PaymentProfiles *PaymentProfileHandler
	Tickets         *TicketHandler
}

// RouterConfig contains configuration for the HTTP router
type RouterConfig struct {
	ServiceName string
	JWTSecret   string
	JWTIssuer   string
	// Idempotency guards purchase and withdrawal creation; nil disables it
	Idempotency *middleware.IdempotencyConfig
	Log         *logger.Logger
}

// NewRouter builds the gin engine with all routes registered
func NewRouter(h *Handlers, cfg *RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Get()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	idempotent := func(c *gin.Context) { c.Next() }
	if cfg.Idempotency != nil {
		idempotent = middleware.Idempotency(cfg.Idempotency)
	}

	v1 := router.Group("/api/v1")
	{
		// Provider callbacks authenticate by signature, not token
		v1.POST("/webhooks/paystack", h.Webhook.HandlePaymentWebhook)
		v1.POST("/webhooks/paystack/transfer", h.Webhook.HandleTransferWebhook)
		v1.GET("/payments/verify/:reference", h.Purchase.VerifyPayment)

		auth := v1.Group("")
		auth.Use(middleware.Auth(cfg.JWTSecret, cfg.JWTIssuer))

		purchases := auth.Group("/purchases")
		{
			purchases.POST("", idempotent, h.Purchase.InitiatePurchase)
			purchases.GET("/:id/status", h.Purchase.GetPurchaseStatus)
			purchases.POST("/:id/cancel", h.Purchase.CancelPurchase)
			purchases.POST("/:id/resend-tickets", h.Purchase.ResendTickets)
		}

		auth.GET("/revenue/stats", h.Payout.GetRevenueStats)
		auth.GET("/revenue", h.Payout.ListRevenue)

		withdrawals := auth.Group("/withdrawals")
		{
			withdrawals.POST("", idempotent, h.Payout.RequestWithdrawal)
			withdrawals.GET("", h.Payout.ListWithdrawals)
			withdrawals.DELETE("/:id", h.Payout.CancelWithdrawal)
		}

		admin := auth.Group("/admin")
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("/withdrawals/:id/process", h.Payout.ProcessWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.Payout.RejectWithdrawal)
		}

		profiles := auth.Group("/payment-profiles")
		{
			profiles.POST("", h.PaymentProfiles.Create)
			profiles.GET("/:id", h.PaymentProfiles.Get)
			profiles.POST("/:id/verify", h.PaymentProfiles.Verify)
		}

		auth.POST("/tickets/:id/check-in", h.Tickets.CheckIn)
	}

	return router
}
