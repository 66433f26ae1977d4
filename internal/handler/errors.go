package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/middleware"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/response"
)

// handleError maps service errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsValidationError(err):
		response.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	case errors.Is(err, domain.ErrVerificationExhausted):
		response.Fail(c, http.StatusBadRequest, "VERIFICATION_EXHAUSTED", err.Error(), "Retry with ?retry=true")
	case domain.IsInventoryError(err):
		response.Fail(c, http.StatusConflict, "TICKETS_UNAVAILABLE", err.Error(), "")
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case domain.IsForbiddenError(err):
		response.Forbidden(c, err.Error())
	case domain.IsConflictError(err):
		response.Fail(c, http.StatusConflict, "CONFLICT", err.Error(), "")
	case domain.IsGatewayError(err):
		response.Fail(c, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", gateway.Reason(err), "")
	default:
		logger.Get().ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
	}
}

// requireUser returns the authenticated user or writes 401
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
	}
	return userID, ok
}

// pagination reads limit and offset query parameters
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
