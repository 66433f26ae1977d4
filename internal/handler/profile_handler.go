package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/service"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/response"
)

// PaymentProfileHandler handles organizer payout destinations
type PaymentProfileHandler struct {
	profiles service.PaymentProfileService
}

// NewPaymentProfileHandler creates a new payment profile handler
func NewPaymentProfileHandler(profiles service.PaymentProfileService) *PaymentProfileHandler {
	return &PaymentProfileHandler{profiles: profiles}
}

// Create handles POST /payment-profiles
func (h *PaymentProfileHandler) Create(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", err.Error())
		return
	}

	profile, err := h.profiles.Create(c.Request.Context(), organizerID, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.PaymentProfileFromDomain(profile))
}

// Get handles GET /payment-profiles/:id
func (h *PaymentProfileHandler) Get(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), organizerID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.PaymentProfileFromDomain(profile))
}

// Verify handles POST /payment-profiles/:id/verify?retry=true
// A run that exhausts its attempts still returns the profile with the failure reason.
func (h *PaymentProfileHandler) Verify(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}
	isRetry, _ := strconv.ParseBool(c.DefaultQuery("retry", "false"))

	profile, err := h.profiles.Verify(c.Request.Context(), organizerID, c.Param("id"), isRetry)
	if errors.Is(err, domain.ErrVerificationExhausted) && profile != nil {
		c.JSON(http.StatusBadRequest, response.Response{
			Success: false,
			Data:    dto.PaymentProfileFromDomain(profile),
			Error: &response.ErrorData{
				Code:    "VERIFICATION_EXHAUSTED",
				Message: profile.FailureReason,
				Details: "Retry with ?retry=true",
			},
		})
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.PaymentProfileFromDomain(profile))
}

// TicketHandler handles venue-side ticket operations
type TicketHandler struct {
	tickets service.TicketService
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(tickets service.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// CheckIn handles POST /tickets/:id/check-in
func (h *TicketHandler) CheckIn(c *gin.Context) {
	actorID, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.tickets.CheckIn(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
