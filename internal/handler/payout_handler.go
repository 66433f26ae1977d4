package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/internal/service"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/response"
)

// PayoutHandler handles organizer revenue and withdrawal requests
type PayoutHandler struct {
	revenue     service.RevenueService
	withdrawals service.WithdrawalService
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(revenue service.RevenueService, withdrawals service.WithdrawalService) *PayoutHandler {
	return &PayoutHandler{
		revenue:     revenue,
		withdrawals: withdrawals,
	}
}

// GetRevenueStats handles GET /revenue/stats
func (h *PayoutHandler) GetRevenueStats(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	summary, err := h.revenue.Balances(c.Request.Context(), organizerID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, summary)
}

// ListRevenue handles GET /revenue?status=&limit=&offset=
func (h *PayoutHandler) ListRevenue(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	filter := repository.RevenueFilter{Limit: limit, Offset: offset}
	if s := c.Query("status"); s != "" {
		status := domain.RevenueStatus(s)
		switch status {
		case domain.RevenueStatusPending, domain.RevenueStatusAvailable,
			domain.RevenueStatusOnHold, domain.RevenueStatusWithdrawn:
			filter.Status = &status
		default:
			response.BadRequest(c, "unknown revenue status: "+s)
			return
		}
	}

	entries, err := h.revenue.ListEntries(c.Request.Context(), organizerID, filter)
	if err != nil {
		handleError(c, err)
		return
	}

	out := dto.RevenueListResponse{
		Entries: make([]dto.RevenueEntryResponse, 0, len(entries)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, dto.RevenueEntryFromDomain(e))
	}
	response.Success(c, out)
}

// RequestWithdrawal handles POST /withdrawals
func (h *PayoutHandler) RequestWithdrawal(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	var req dto.RequestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", err.Error())
		return
	}

	w, err := h.withdrawals.RequestWithdrawal(c.Request.Context(), organizerID, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.WithdrawalFromDomain(w))
}

// ListWithdrawals handles GET /withdrawals
func (h *PayoutHandler) ListWithdrawals(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	requests, err := h.withdrawals.ListWithdrawals(c.Request.Context(), organizerID, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}

	out := dto.WithdrawalListResponse{
		Withdrawals: make([]dto.WithdrawalResponse, 0, len(requests)),
		Limit:       limit,
		Offset:      offset,
	}
	for _, w := range requests {
		out.Withdrawals = append(out.Withdrawals, dto.WithdrawalFromDomain(w))
	}
	response.Success(c, out)
}

// CancelWithdrawal handles DELETE /withdrawals/:id
func (h *PayoutHandler) CancelWithdrawal(c *gin.Context) {
	organizerID, ok := requireUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.withdrawals.CancelWithdrawal(c.Request.Context(), organizerID, id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "message": "Withdrawal request cancelled"})
}

// ProcessWithdrawal handles POST /admin/withdrawals/:id/process
func (h *PayoutHandler) ProcessWithdrawal(c *gin.Context) {
	w, err := h.withdrawals.ProcessWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.WithdrawalFromDomain(w))
}

// RejectWithdrawal handles POST /admin/withdrawals/:id/reject
func (h *PayoutHandler) RejectWithdrawal(c *gin.Context) {
	var req dto.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", err.Error())
		return
	}

	w, err := h.withdrawals.RejectWithdrawal(c.Request.Context(), c.Param("id"), req.AdminNotes)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.WithdrawalFromDomain(w))
}
