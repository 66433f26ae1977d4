package di

import (
	"github.com/gin-gonic/gin"

	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/handler"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/internal/service"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/middleware"
)

// Container holds all dependencies of the marketplace service
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	// Infrastructure
	Store     repository.Store
	Gateway   gateway.PaymentGateway
	Transfers gateway.TransferProvider
	Hooks     *event.Hooks

	// Services
	Rules          *service.Rules
	Inventory      service.InventoryService
	Reservations   service.ReservationService
	Settlement     service.SettlementService
	Revenue        service.RevenueService
	Withdrawals    service.WithdrawalService
	Verification   service.VerificationService
	PaymentProfile service.PaymentProfileService
	Tickets        service.TicketService

	// Handlers
	Handlers *handler.Handlers
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config    *config.Config
	Store     repository.Store
	Gateway   gateway.PaymentGateway
	Transfers gateway.TransferProvider
	Publisher event.Publisher
	Log       *logger.Logger

	// HealthChecks are reported by /ready
	HealthChecks map[string]handler.HealthCheck
	// Clock overrides time.Now in the services, for tests
	Clock service.Clock
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	log := cfg.Log
	if log == nil {
		log = logger.Get()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = event.NoOpPublisher{}
	}

	c := &Container{
		Config:    cfg.Config,
		Log:       log,
		Store:     cfg.Store,
		Gateway:   cfg.Gateway,
		Transfers: cfg.Transfers,
		Hooks:     event.DefaultHooks(log, publisher),
		Rules:     service.RulesFromConfig(&cfg.Config.Marketplace),
	}

	// Initialize services
	c.Inventory = service.NewInventoryService(c.Store)
	c.Reservations = service.NewReservationService(c.Store, c.Inventory, c.Gateway, c.Hooks, log,
		&service.ReservationServiceConfig{Rules: c.Rules, Clock: cfg.Clock})
	c.Settlement = service.NewSettlementService(c.Store, c.Inventory, c.Gateway, c.Hooks, log,
		&service.SettlementServiceConfig{Rules: c.Rules, Clock: cfg.Clock})
	c.Revenue = service.NewRevenueService(c.Store, log)
	c.Withdrawals = service.NewWithdrawalService(c.Store, c.Transfers, c.Hooks, log,
		&service.WithdrawalServiceConfig{Rules: c.Rules, Clock: cfg.Clock, ManualProcessing: cfg.Config.Marketplace.ManualWithdrawals})
	c.Verification = service.NewVerificationService(c.Store, c.Transfers, log,
		&service.VerificationServiceConfig{Rules: c.Rules, Clock: cfg.Clock})
	c.PaymentProfile = service.NewPaymentProfileService(c.Store, c.Verification, cfg.Clock)
	c.Tickets = service.NewTicketService(c.Store, log, cfg.Clock)

	// Initialize handlers
	c.Handlers = &handler.Handlers{
		Health:          handler.NewHealthHandler(cfg.HealthChecks),
		Purchase:        handler.NewPurchaseHandler(c.Reservations, c.Settlement),
		Webhook:         handler.NewWebhookHandler(c.Settlement, c.Withdrawals, cfg.Config.Paystack.SecretKey, log),
		Payout:          handler.NewPayoutHandler(c.Revenue, c.Withdrawals),
		PaymentProfiles: handler.NewPaymentProfileHandler(c.PaymentProfile),
		Tickets:         handler.NewTicketHandler(c.Tickets),
	}

	return c
}

// Router builds the HTTP router. idempotency may be nil.
func (c *Container) Router(idempotency *middleware.IdempotencyConfig) *gin.Engine {
	return handler.NewRouter(c.Handlers, &handler.RouterConfig{
		ServiceName: c.Config.OTel.ServiceName,
		JWTSecret:   c.Config.JWT.Secret,
		JWTIssuer:   c.Config.JWT.Issuer,
		Idempotency: idempotency,
		Log:         c.Log,
	})
}
