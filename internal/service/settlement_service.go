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

// Settlement sources, used as metric labels
const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
)

// Settlement messages returned to the buyer
const (
	MsgPaymentVerified      = "Payment verified successfully"
	MsgAlreadyVerified      = "Payment already verified"
	MsgPaymentFailed        = "Payment verification failed"
	MsgPaymentPending       = "Payment is still pending"
	MsgLatePaymentRefund    = "Payment received after the reservation closed and will be refunded"
	refundReasonNoInventory = "payment received after reservation closed; tickets no longer available"
	refundReasonClosed      = "payment received for a closed purchase"
)

// SettlementService converts gateway outcomes into issued tickets and revenue
type SettlementService interface {
	// VerifyPayment asks the gateway for the outcome of reference and settles it
	VerifyPayment(ctx context.Context, reference string) (*dto.SettlementResponse, error)

	// HandleChargeWebhook settles a verified charge notification
	HandleChargeWebhook(ctx context.Context, evt *gateway.WebhookEvent) error

	// ResendTickets republishes the completion event of a buyer's purchase
	ResendTickets(ctx context.Context, buyerID, purchaseID string) (*dto.ResendTicketsResponse, error)
}

// SettlementServiceConfig contains configuration for settlement service
type SettlementServiceConfig struct {
	Rules *Rules
	Clock Clock
}

type settlementService struct {
	store     repository.Store
	inventory InventoryService
	gateway   gateway.PaymentGateway
	hooks     *event.Hooks
	log       *logger.Logger
	rules     *Rules
	now       Clock
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	store repository.Store,
	inventory InventoryService,
	gw gateway.PaymentGateway,
	hooks *event.Hooks,
	log *logger.Logger,
	cfg *SettlementServiceConfig,
) SettlementService {
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
	return &settlementService{
		store:     store,
		inventory: inventory,
		gateway:   gw,
		hooks:     hooks,
		log:       log,
		rules:     rules,
		now:       clockOrDefault(clock),
	}
}

// chargeOutcome is what the gateway reported for a payment
type chargeOutcome struct {
	success  bool
	channel  string
	reason   string
	response map[string]any
	source   string
}

// VerifyPayment is the polling path of settlement
func (s *settlementService) VerifyPayment(ctx context.Context, reference string) (*dto.SettlementResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.verify_payment")
	defer span.End()
	span.SetAttributes(attribute.String("reference", reference))

	repos := s.store.Repos()
	payment, err := repos.Payments.GetByReference(ctx, reference)
	if err != nil {
		span.SetStatus(codes.Error, "payment lookup failed")
		return nil, err
	}

	if payment.Status == domain.PaymentStatusCompleted {
		metrics.SettlementsTotal.WithLabelValues(SourceVerify, "noop").Inc()
		return s.currentResult(ctx, repos, payment, MsgAlreadyVerified)
	}

	start := time.Now()
	result, err := s.gateway.Verify(ctx, reference)
	metrics.ObserveGateway(s.gateway.Name(), "verify", start, err)

	var outcome *chargeOutcome
	switch {
	case err != nil:
		s.log.WarnContext(ctx, "payment verification call failed",
			zap.String("reference", reference),
			zap.Error(err),
		)
		outcome = &chargeOutcome{reason: gateway.Reason(err), source: SourceVerify}
	case result.Status == gateway.VerifyPending:
		metrics.SettlementsTotal.WithLabelValues(SourceVerify, "pending").Inc()
		return s.currentResult(ctx, repos, payment, MsgPaymentPending)
	case result.Status == gateway.VerifySuccess:
		outcome = &chargeOutcome{success: true, channel: result.Channel, response: result.Raw, source: SourceVerify}
	default:
		reason := result.GatewayResponse
		if reason == "" {
			reason = "payment " + result.ProviderStatus
		}
		outcome = &chargeOutcome{reason: reason, response: result.Raw, source: SourceVerify}
	}

	res, err := s.settle(ctx, reference, outcome)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("status", res.Status))
	return res, nil
}

// HandleChargeWebhook is the push path of settlement. Events other than
// charge.success are acknowledged without side effects.
func (s *settlementService) HandleChargeWebhook(ctx context.Context, evt *gateway.WebhookEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.handle_charge_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("event", evt.Event))

	if evt.Event != gateway.EventChargeSuccess {
		metrics.WebhooksTotal.WithLabelValues("charge", "ignored").Inc()
		return nil
	}

	charge, err := evt.Charge()
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("charge", "invalid").Inc()
		return err
	}
	span.SetAttributes(attribute.String("reference", charge.Reference))

	_, err = s.settle(ctx, charge.Reference, &chargeOutcome{
		success:  true,
		channel:  charge.Channel,
		response: evt.RawData(),
		source:   SourceWebhook,
	})
	if errors.Is(err, domain.ErrPaymentNotFound) {
		s.log.WarnContext(ctx, "charge webhook for unknown reference", zap.String("reference", charge.Reference))
		metrics.WebhooksTotal.WithLabelValues("charge", "unknown").Inc()
		return nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.WebhooksTotal.WithLabelValues("charge", "error").Inc()
		return err
	}
	metrics.WebhooksTotal.WithLabelValues("charge", "processed").Inc()
	return nil
}

// settle applies a gateway outcome to the payment, purchase, tickets, revenue and
// inventory in one transaction. Repeated calls for an already settled payment change nothing.
// Rows are locked in the order purchase, payment, ticket type.
func (s *settlementService) settle(ctx context.Context, reference string, out *chargeOutcome) (*dto.SettlementResponse, error) {
	now := s.now()
	var (
		res     *dto.SettlementResponse
		evt     *event.Event
		outcome string
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		res, evt, outcome = nil, nil, ""

		peek, err := tx.Payments.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		purchase, err := tx.Purchases.GetForUpdate(ctx, peek.PurchaseID)
		if err != nil {
			return err
		}
		payment, err := tx.Payments.GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		tickets, err := tx.Tickets.ListByPurchase(ctx, purchase.ID)
		if err != nil {
			return err
		}

		switch {
		case payment.Status == domain.PaymentStatusCompleted:
			outcome = "noop"
			res = settlementResult(purchase, payment, tickets, MsgAlreadyVerified)
			return nil
		case !out.success && payment.Status == domain.PaymentStatusFailed:
			outcome = "noop"
			res = settlementResult(purchase, payment, nil, MsgPaymentFailed)
			return nil
		case !out.success:
			outcome = "failed"
			evt, err = s.applyFailure(ctx, tx, purchase, payment, tickets, out, now)
			if err != nil {
				return err
			}
			res = settlementResult(purchase, payment, nil, MsgPaymentFailed)
			return nil
		case purchase.IsOpen():
			outcome = "completed"
			evt, err = s.applySuccess(ctx, tx, purchase, payment, tickets, out, now)
			if err != nil {
				return err
			}
			res = settlementResult(purchase, payment, tickets, MsgPaymentVerified)
			return nil
		default:
			outcome, evt, err = s.applyLatePayment(ctx, tx, purchase, payment, tickets, out, now)
			if err != nil {
				return err
			}
			msg := MsgPaymentVerified
			if payment.NeedsRefund {
				msg = MsgLatePaymentRefund
				tickets = nil
			}
			res = settlementResult(purchase, payment, tickets, msg)
			return nil
		}
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues(out.source, "error").Inc()
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues(out.source, outcome).Inc()
	s.hooks.Run(ctx, evt)
	return res, nil
}

// applySuccess completes an open purchase: tickets are issued and one revenue entry is booked
func (s *settlementService) applySuccess(ctx context.Context, tx *repository.Repositories, purchase *domain.Purchase, payment *domain.Payment, tickets []*domain.Ticket, out *chargeOutcome, now time.Time) (*event.Event, error) {
	if err := payment.Complete(out.channel, out.response, now); err != nil {
		return nil, err
	}
	if err := tx.Payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if err := purchase.Complete(now); err != nil {
		return nil, err
	}
	return s.issue(ctx, tx, purchase, tickets, now)
}

// applyFailure fails an open purchase and gives its inventory back
func (s *settlementService) applyFailure(ctx context.Context, tx *repository.Repositories, purchase *domain.Purchase, payment *domain.Payment, tickets []*domain.Ticket, out *chargeOutcome, now time.Time) (*event.Event, error) {
	if err := payment.Fail(out.reason, out.response, now); err != nil {
		return nil, err
	}
	if err := tx.Payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if !purchase.IsOpen() {
		return nil, nil
	}

	if err := purchase.Fail(out.reason, now); err != nil {
		return nil, err
	}
	if err := tx.Purchases.Update(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}
	for _, t := range tickets {
		if t.Release(domain.TicketStatusExpired, now) {
			if err := tx.Tickets.Update(ctx, t); err != nil {
				return nil, fmt.Errorf("failed to update ticket: %w", err)
			}
		}
	}
	if err := s.inventory.Release(ctx, tx, purchase.TicketTypeID, purchase.Quantity, now); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment failed",
		zap.String("purchase_id", purchase.ID),
		zap.String("reason", out.reason),
	)
	return event.NewPurchaseEvent(event.PurchaseFailed, purchase, nil, now), nil
}

// applyLatePayment handles a successful charge for a purchase that was already closed.
// An expired purchase is completed when its quantity can still be re-reserved.
// Otherwise the payment is kept as completed and flagged for refund.
func (s *settlementService) applyLatePayment(ctx context.Context, tx *repository.Repositories, purchase *domain.Purchase, payment *domain.Payment, tickets []*domain.Ticket, out *chargeOutcome, now time.Time) (string, *event.Event, error) {
	var err error
	if payment.Status == domain.PaymentStatusPending {
		err = payment.Complete(out.channel, out.response, now)
	} else {
		err = payment.CaptureLate(out.channel, out.response, now)
	}
	if err != nil {
		return "", nil, err
	}

	reacquired := false
	if purchase.Status == domain.PurchaseStatusExpired {
		switch err := s.inventory.Reacquire(ctx, tx, purchase.TicketTypeID, purchase.Quantity, now); {
		case err == nil:
			reacquired = true
		case errors.Is(err, domain.ErrInsufficientInventory):
		default:
			return "", nil, err
		}
	}

	if !reacquired {
		reason := refundReasonClosed
		if purchase.Status == domain.PurchaseStatusExpired {
			reason = refundReasonNoInventory
		}
		payment.FlagRefund(reason, now)
		if err := tx.Payments.Update(ctx, payment); err != nil {
			return "", nil, fmt.Errorf("failed to update payment: %w", err)
		}
		s.log.WarnContext(ctx, "late payment needs refund",
			zap.String("purchase_id", purchase.ID),
			zap.String("reference", payment.Reference),
			zap.String("purchase_status", string(purchase.Status)),
		)
		return "refund", nil, nil
	}

	if err := tx.Payments.Update(ctx, payment); err != nil {
		return "", nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if err := purchase.CompleteLate(now); err != nil {
		return "", nil, err
	}
	for _, t := range tickets {
		t.Revive(now)
	}
	evt, err := s.issue(ctx, tx, purchase, tickets, now)
	if err != nil {
		return "", nil, err
	}
	s.log.InfoContext(ctx, "late payment honoured", zap.String("purchase_id", purchase.ID))
	return "late_completed", evt, nil
}

// issue persists a completed purchase, marks its tickets paid and books its revenue
func (s *settlementService) issue(ctx context.Context, tx *repository.Repositories, purchase *domain.Purchase, tickets []*domain.Ticket, now time.Time) (*event.Event, error) {
	if err := tx.Purchases.Update(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}

	for _, t := range tickets {
		if t.Status != domain.TicketStatusReserved {
			continue
		}
		if err := t.MarkPaid(now); err != nil {
			return nil, err
		}
		if err := tx.Tickets.Update(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to update ticket: %w", err)
		}
	}

	revenue := domain.NewOrganizerRevenue(purchase, s.rules.PlatformFeeRate, s.rules.HoldingPeriod, now)
	if err := tx.Revenue.Create(ctx, revenue); err != nil {
		return nil, fmt.Errorf("failed to record revenue: %w", err)
	}

	s.log.InfoContext(ctx, "purchase completed",
		zap.String("purchase_id", purchase.ID),
		zap.Int("tickets", len(tickets)),
		zap.String("organizer_earnings", revenue.OrganizerEarnings.StringFixed(2)),
	)
	return event.NewPurchaseEvent(event.PurchaseCompleted, purchase, tickets, now), nil
}

// ResendTickets re-runs the completion hooks so the buyer is notified again
func (s *settlementService) ResendTickets(ctx context.Context, buyerID, purchaseID string) (*dto.ResendTicketsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.resend_tickets")
	defer span.End()
	span.SetAttributes(attribute.String("purchase_id", purchaseID))

	repos := s.store.Repos()
	purchase, err := repos.Purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.BuyerID != buyerID {
		return nil, domain.ErrPurchaseNotFound
	}
	if purchase.Status != domain.PurchaseStatusCompleted {
		return nil, domain.ErrPurchaseNotCompleted
	}

	tickets, err := repos.Tickets.ListByPurchase(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}

	s.hooks.Run(ctx, event.NewPurchaseEvent(event.TicketsResent, purchase, tickets, s.now()))
	return &dto.ResendTicketsResponse{
		PurchaseID:  purchase.ID,
		Email:       purchase.Attendee.Email,
		TicketCount: len(tickets),
	}, nil
}

func (s *settlementService) currentResult(ctx context.Context, repos *repository.Repositories, payment *domain.Payment, msg string) (*dto.SettlementResponse, error) {
	purchase, err := repos.Purchases.GetByID(ctx, payment.PurchaseID)
	if err != nil {
		return nil, err
	}
	var tickets []*domain.Ticket
	if purchase.Status == domain.PurchaseStatusCompleted {
		if tickets, err = repos.Tickets.ListByPurchase(ctx, purchase.ID); err != nil {
			return nil, err
		}
	}
	return settlementResult(purchase, payment, tickets, msg), nil
}

func settlementResult(purchase *domain.Purchase, payment *domain.Payment, tickets []*domain.Ticket, msg string) *dto.SettlementResponse {
	res := &dto.SettlementResponse{
		PurchaseID:    purchase.ID,
		Reference:     payment.Reference,
		Status:        string(purchase.Status),
		PaymentStatus: string(payment.Status),
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Message:       msg,
		NeedsRefund:   payment.NeedsRefund,
	}
	if purchase.Status == domain.PurchaseStatusCompleted && len(tickets) > 0 {
		res.Tickets = dto.TicketsFromDomain(tickets)
	}
	return res
}
