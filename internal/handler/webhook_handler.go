package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/internal/service"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/response"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles signed provider notifications
type WebhookHandler struct {
	settlement  service.SettlementService
	withdrawals service.WithdrawalService
	secret      string
	log         *logger.Logger
}

// NewWebhookHandler creates a new WebhookHandler. secret is the key the provider signs with.
func NewWebhookHandler(settlement service.SettlementService, withdrawals service.WithdrawalService, secret string, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Get()
	}
	return &WebhookHandler{
		settlement:  settlement,
		withdrawals: withdrawals,
		secret:      secret,
		log:         log,
	}
}

// HandlePaymentWebhook handles POST /webhooks/paystack
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	h.handle(c, "charge", h.settlement.HandleChargeWebhook)
}

// HandleTransferWebhook handles POST /webhooks/paystack/transfer
func (h *WebhookHandler) HandleTransferWebhook(c *gin.Context) {
	h.handle(c, "transfer", h.withdrawals.HandleTransferWebhook)
}

// handle verifies the signature before anything is decoded. Processing errors
// return 500 so the provider redelivers.
func (h *WebhookHandler) handle(c *gin.Context, kind string, process func(ctx context.Context, evt *gateway.WebhookEvent) error) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return
	}

	if err := gateway.VerifySignature(h.secret, body, c.GetHeader(gateway.SignatureHeader)); err != nil {
		h.log.WarnContext(ctx, "rejected webhook with invalid signature",
			zap.String("kind", kind),
			zap.String("ip", c.ClientIP()),
		)
		metrics.WebhooksTotal.WithLabelValues(kind, "rejected").Inc()
		response.Fail(c, http.StatusBadRequest, "INVALID_SIGNATURE", err.Error(), "")
		return
	}

	evt, err := gateway.ParseWebhook(body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(kind, "invalid").Inc()
		response.BadRequest(c, err.Error())
		return
	}

	if err := process(ctx, evt); err != nil {
		h.log.ErrorContext(ctx, "webhook processing failed",
			zap.String("kind", kind),
			zap.String("event", evt.Event),
			zap.Error(err),
		)
		response.InternalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
