package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// ReservationService defines the interface for the purchase reservation flow
type ReservationService interface {
	// InitiatePurchase reserves inventory, mints placeholder tickets and opens a gateway checkout
	InitiatePurchase(ctx context.Context, buyerID string, req *dto.InitiatePurchaseRequest) (*dto.InitiatePurchaseResponse, error)

	// GetPurchaseStatus returns a buyer's purchase, expiring it first when overdue
	GetPurchaseStatus(ctx context.Context, buyerID, purchaseID string) (*dto.PurchaseStatusResponse, error)

	// CancelPurchase releases an open purchase on the buyer's request
	CancelPurchase(ctx context.Context, buyerID, purchaseID string) (*dto.CancelPurchaseResponse, error)

	// ExpireStale expires up to batch overdue purchases and returns how many were expired
	ExpireStale(ctx context.Context, now time.Time, batch int) (int, error)
}

// ReservationServiceConfig contains configuration for reservation service
type ReservationServiceConfig struct {
	Rules *Rules
	Clock Clock
}

type reservationService struct {
	store     repository.Store
	inventory InventoryService
	gateway   gateway.PaymentGateway
	hooks     *event.Hooks
	log       *logger.Logger
	rules     *Rules
	now       Clock
}

// NewReservationService creates a new reservation service
func NewReservationService(
	store repository.Store,
	inventory InventoryService,
	gw gateway.PaymentGateway,
	hooks *event.Hooks,
	log *logger.Logger,
	cfg *ReservationServiceConfig,
) ReservationService {
	rules := DefaultRules()
	var clock Clock
	if cfg != nil {
		if cfg.Rules != nil {
			rules = cfg.Rules
		}
		clock = cfg.Clock
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &reservationService{
		store:     store,
		inventory: inventory,
		gateway:   gw,
		hooks:     hooks,
		log:       log,
		rules:     rules,
		now:       clockOrDefault(clock),
	}
}

// InitiatePurchase reserves tickets and opens a checkout with the payment gateway
func (s *reservationService) InitiatePurchase(ctx context.Context, buyerID string, req *dto.InitiatePurchaseRequest) (*dto.InitiatePurchaseResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.initiate_purchase")
	defer span.End()

	if req == nil || req.Quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, domain.ErrInvalidQuantity
	}
	attendee := req.Attendee()
	if err := attendee.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid attendee")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.String("event_id", req.EventID),
		attribute.String("ticket_type_id", req.TicketTypeID),
		attribute.Int("quantity", req.Quantity),
	)

	now := s.now()
	repos := s.store.Repos()

	evt, err := repos.Events.GetByID(ctx, req.EventID)
	if err != nil {
		span.SetStatus(codes.Error, "event lookup failed")
		return nil, err
	}
	if !evt.IsOnSale(now) {
		span.SetStatus(codes.Error, "event not on sale")
		return nil, domain.ErrEventNotOnSale
	}

	tt, err := repos.TicketTypes.GetByID(ctx, req.TicketTypeID)
	if err != nil {
		span.SetStatus(codes.Error, "ticket type lookup failed")
		return nil, err
	}
	if tt.EventID != evt.ID {
		span.SetStatus(codes.Error, "ticket type does not belong to event")
		return nil, domain.ErrTicketTypeNotFound
	}

	pricing := domain.ComputePricing(tt.Price, req.Quantity, s.rules.ServiceFeeRate, s.rules.Currency)
	purchase := domain.NewPurchase(buyerID, evt, tt, attendee, pricing, s.rules.ReservationTTL, now)
	span.SetAttributes(attribute.String("purchase_id", purchase.ID))

	var payment *domain.Payment
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		if _, err := s.inventory.Reserve(ctx, tx, tt.ID, req.Quantity, now); err != nil {
			return err
		}
		if err := tx.Purchases.Create(ctx, purchase); err != nil {
			return fmt.Errorf("failed to create purchase: %w", err)
		}
		if err := tx.Tickets.CreateBatch(ctx, domain.NewPlaceholderTickets(purchase, now)); err != nil {
			return fmt.Errorf("failed to create tickets: %w", err)
		}

		payment = domain.NewPayment(purchase, s.gateway.Name(), now)
		if err := tx.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		start := time.Now()
		checkout, err := s.gateway.Initialize(ctx, &gateway.InitializeRequest{
			Email:       attendee.Email,
			Amount:      purchase.Total,
			Currency:    purchase.Currency,
			Reference:   payment.Reference,
			CallbackURL: s.rules.CallbackURL,
			Description: fmt.Sprintf("%d x %s - %s", purchase.Quantity, tt.Name, evt.Title),
			Metadata: map[string]string{
				"purchase_id": purchase.ID,
				"event_id":    evt.ID,
				"buyer_id":    buyerID,
			},
		})
		metrics.ObserveGateway(s.gateway.Name(), "initialize", start, err)
		if err != nil {
			return fmt.Errorf("failed to initialize payment: %w", err)
		}

		payment.SetCheckout(checkout.AuthorizationURL, checkout.AccessCode, now)
		if err := tx.Payments.Update(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		if err := purchase.MarkPending(now); err != nil {
			return err
		}
		return tx.Purchases.Update(ctx, purchase)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if domain.IsGatewayError(err) {
			s.recordFailedPurchase(ctx, purchase, gateway.Reason(err))
		}
		return nil, err
	}

	metrics.PurchasesTotal.WithLabelValues(string(domain.PurchaseStatusPending)).Inc()
	s.log.InfoContext(ctx, "purchase reserved",
		zap.String("purchase_id", purchase.ID),
		zap.String("reference", payment.Reference),
		zap.Int("quantity", purchase.Quantity),
	)

	span.SetStatus(codes.Ok, "")
	return &dto.InitiatePurchaseResponse{
		PurchaseID:   purchase.ID,
		Status:       string(purchase.Status),
		EventID:      evt.ID,
		EventTitle:   evt.Title,
		TicketTypeID: tt.ID,
		TicketType:   tt.Name,
		Pricing:      dto.PricingFromDomain(pricing),
		Payment: dto.PaymentInfo{
			Provider:         payment.Provider,
			Reference:        payment.Reference,
			AuthorizationURL: payment.AuthorizationURL,
			AccessCode:       payment.AccessCode,
		},
		Reservation: dto.ReservationInfo{
			ExpiresAt:        purchase.ExpiresAt,
			ExpiresInSeconds: purchase.ExpiresIn(now),
		},
	}, nil
}

// recordFailedPurchase keeps an audit row for a purchase whose reservation was rolled back.
// It holds no inventory and has no tickets.
func (s *reservationService) recordFailedPurchase(ctx context.Context, purchase *domain.Purchase, reason string) {
	if err := purchase.Fail(reason, s.now()); err != nil {
		return
	}
	if err := s.store.Repos().Purchases.Create(ctx, purchase); err != nil {
		s.log.ErrorContext(ctx, "failed to record failed purchase",
			zap.String("purchase_id", purchase.ID),
			zap.Error(err),
		)
		return
	}
	metrics.PurchasesTotal.WithLabelValues(string(domain.PurchaseStatusFailed)).Inc()
	s.log.WarnContext(ctx, "payment initialization failed",
		zap.String("purchase_id", purchase.ID),
		zap.String("reason", reason),
	)
}

// GetPurchaseStatus returns the buyer's view of a purchase
func (s *reservationService) GetPurchaseStatus(ctx context.Context, buyerID, purchaseID string) (*dto.PurchaseStatusResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.get_purchase_status")
	defer span.End()
	span.SetAttributes(attribute.String("purchase_id", purchaseID))

	now := s.now()
	repos := s.store.Repos()

	purchase, err := s.ownedPurchase(ctx, repos, buyerID, purchaseID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if purchase.IsOverdue(now) {
		if _, err := s.expireOne(ctx, purchase.ID, now); err != nil {
			span.SetStatus(codes.Error, "lazy expiry failed")
			return nil, err
		}
		if purchase, err = repos.Purchases.GetByID(ctx, purchaseID); err != nil {
			return nil, err
		}
	}

	resp := &dto.PurchaseStatusResponse{
		PurchaseID:    purchase.ID,
		Status:        string(purchase.Status),
		Pricing:       dto.PricingFromDomain(purchase.Pricing()),
		CompletedAt:   purchase.CompletedAt,
		FailureReason: purchase.FailureReason,
	}

	payment, err := repos.Payments.GetByPurchaseID(ctx, purchase.ID)
	switch {
	case err == nil:
		resp.PaymentReference = payment.Reference
		if purchase.IsOpen() {
			resp.AuthorizationURL = payment.AuthorizationURL
		}
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, err
	}

	if purchase.IsOpen() {
		expiresAt := purchase.ExpiresAt
		expiresIn := purchase.ExpiresIn(now)
		resp.ExpiresAt = &expiresAt
		resp.ExpiresInSeconds = &expiresIn
	}

	if purchase.Status == domain.PurchaseStatusCompleted {
		tickets, err := repos.Tickets.ListByPurchase(ctx, purchase.ID)
		if err != nil {
			return nil, err
		}
		resp.Tickets = dto.TicketsFromDomain(tickets)
	}

	return resp, nil
}

// CancelPurchase releases an open purchase owned by the buyer
func (s *reservationService) CancelPurchase(ctx context.Context, buyerID, purchaseID string) (*dto.CancelPurchaseResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cancel_purchase")
	defer span.End()
	span.SetAttributes(attribute.String("purchase_id", purchaseID))

	now := s.now()
	var evt *event.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		purchase, err := tx.Purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if purchase.BuyerID != buyerID {
			return domain.ErrPurchaseNotFound
		}
		if err := purchase.Cancel(now); err != nil {
			return err
		}

		tickets, err := s.closePurchase(ctx, tx, purchase, domain.TicketStatusCancelled, now)
		if err != nil {
			return err
		}
		evt = event.NewPurchaseEvent(event.PurchaseCancelled, purchase, tickets, now)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.hooks.Run(ctx, evt)
	return &dto.CancelPurchaseResponse{
		PurchaseID: purchaseID,
		Status:     string(domain.PurchaseStatusCancelled),
		Message:    "Purchase cancelled and tickets released",
	}, nil
}

// ExpireStale expires overdue purchases, each in its own transaction
func (s *reservationService) ExpireStale(ctx context.Context, now time.Time, batch int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.expire_stale")
	defer span.End()

	if batch <= 0 {
		batch = 100
	}
	ids, err := s.store.Repos().Purchases.ListOverdueIDs(ctx, now, batch)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list overdue purchases")
		return 0, fmt.Errorf("failed to list overdue purchases: %w", err)
	}

	expired := 0
	for _, id := range ids {
		ok, err := s.expireOne(ctx, id, now)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to expire purchase",
				zap.String("purchase_id", id),
				zap.Error(err),
			)
			continue
		}
		if ok {
			expired++
		}
	}

	span.SetAttributes(attribute.Int("expired_count", expired))
	return expired, nil
}

// expireOne expires a single purchase. It reports false when the purchase
// was settled or cancelled before the lock was taken.
func (s *reservationService) expireOne(ctx context.Context, purchaseID string, now time.Time) (bool, error) {
	var evt *event.Event
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		purchase, err := tx.Purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if !purchase.IsOverdue(now) {
			return nil
		}
		if err := purchase.Expire(now); err != nil {
			return err
		}

		tickets, err := s.closePurchase(ctx, tx, purchase, domain.TicketStatusExpired, now)
		if err != nil {
			return err
		}
		evt = event.NewPurchaseEvent(event.PurchaseExpired, purchase, tickets, now)
		return nil
	})
	if err != nil || evt == nil {
		return false, err
	}

	s.hooks.Run(ctx, evt)
	return true, nil
}

// closePurchase persists a purchase that was just closed, fails its pending payment,
// releases its placeholder tickets and returns its inventory
func (s *reservationService) closePurchase(ctx context.Context, tx *repository.Repositories, purchase *domain.Purchase, ticketStatus domain.TicketStatus, now time.Time) ([]*domain.Ticket, error) {
	if err := tx.Purchases.Update(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}

	payment, err := tx.Payments.GetByPurchaseID(ctx, purchase.ID)
	switch {
	case err == nil:
		if payment.Status == domain.PaymentStatusPending {
			if err := payment.Fail(purchase.FailureReason, nil, now); err != nil {
				return nil, err
			}
			if err := tx.Payments.Update(ctx, payment); err != nil {
				return nil, fmt.Errorf("failed to update payment: %w", err)
			}
		}
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, err
	}

	tickets, err := tx.Tickets.ListByPurchase(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if t.Release(ticketStatus, now) {
			if err := tx.Tickets.Update(ctx, t); err != nil {
				return nil, fmt.Errorf("failed to update ticket: %w", err)
			}
		}
	}

	if err := s.inventory.Release(ctx, tx, purchase.TicketTypeID, purchase.Quantity, now); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *reservationService) ownedPurchase(ctx context.Context, repos *repository.Repositories, buyerID, purchaseID string) (*domain.Purchase, error) {
	purchase, err := repos.Purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.BuyerID != buyerID {
		return nil, domain.ErrPurchaseNotFound
	}
	return purchase, nil
}
