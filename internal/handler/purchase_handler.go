package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/service"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/response"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// PurchaseHandler handles the buyer side of the purchase flow
type PurchaseHandler struct {
	reservations service.ReservationService
	settlement   service.SettlementService
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(reservations service.ReservationService, settlement service.SettlementService) *PurchaseHandler {
	return &PurchaseHandler{
		reservations: reservations,
		settlement:   settlement,
	}
}

// InitiatePurchase handles POST /purchases
// Reserves the tickets and returns the checkout URL. The hold lasts until the reservation expires.
func (h *PurchaseHandler) InitiatePurchase(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.purchase.initiate")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	buyerID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.InitiatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.String("event_id", req.EventID),
		attribute.String("ticket_type_id", req.TicketTypeID),
		attribute.Int("quantity", req.Quantity),
	)

	result, err := h.reservations.InitiatePurchase(ctx, buyerID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("purchase_id", result.PurchaseID))
	response.Created(c, result)
}

// GetPurchaseStatus handles GET /purchases/:id/status
func (h *PurchaseHandler) GetPurchaseStatus(c *gin.Context) {
	buyerID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.reservations.GetPurchaseStatus(c.Request.Context(), buyerID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// CancelPurchase handles POST /purchases/:id/cancel
func (h *PurchaseHandler) CancelPurchase(c *gin.Context) {
	buyerID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.reservations.CancelPurchase(c.Request.Context(), buyerID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// ResendTickets handles POST /purchases/:id/resend-tickets
func (h *PurchaseHandler) ResendTickets(c *gin.Context) {
	buyerID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.settlement.ResendTickets(c.Request.Context(), buyerID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// VerifyPayment handles GET /payments/verify/:reference
// Called by the checkout callback page. Settling twice is a no-op, so the
// buyer may refresh freely.
func (h *PurchaseHandler) VerifyPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.verify")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	reference := c.Param("reference")
	span.SetAttributes(attribute.String("reference", reference))

	result, err := h.settlement.VerifyPayment(ctx, reference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
