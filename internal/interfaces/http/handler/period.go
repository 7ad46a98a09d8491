package handler

import (
	"strconv"
	"time"

	"github.com/erp/docledger/internal/application/closing"
	"github.com/erp/docledger/internal/domain/period"
	"github.com/erp/docledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PeriodHandler handles accounting period lifecycle endpoints
type PeriodHandler struct {
	BaseHandler
	closing *closing.Service
}

// NewPeriodHandler creates a new PeriodHandler
func NewPeriodHandler(s *closing.Service) *PeriodHandler {
	return &PeriodHandler{closing: s}
}

// ChecksResponse is the outcome of a dry-run of the pre-close check suite
type ChecksResponse struct {
	Checks   []period.CheckResult `json:"checks"`
	CanClose bool                 `json:"can_close"`
}

// CloseRequest is the body for closing a period
type CloseRequest struct {
	Force bool `json:"force"`
}

// ReopenRequest is the body for reopening a closed period
type ReopenRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// PeriodResponse represents an accounting period in API responses
type PeriodResponse struct {
	ID       uuid.UUID             `json:"id"`
	Year     int                   `json:"year"`
	Month    int                   `json:"month"`
	Status   period.Status         `json:"status"`
	ClosedAt *time.Time            `json:"closed_at,omitempty"`
	ClosedBy *uuid.UUID            `json:"closed_by,omitempty"`
	LockedAt *time.Time            `json:"locked_at,omitempty"`
	LockedBy *uuid.UUID            `json:"locked_by,omitempty"`
	Summary  *period.Summary       `json:"summary,omitempty"`
	Checks   []period.CheckResult  `json:"checks,omitempty"`
	History  []period.HistoryEntry `json:"history,omitempty"`
}

func toPeriodResponse(p *period.Period) PeriodResponse {
	return PeriodResponse{
		ID:       p.ID,
		Year:     p.Year,
		Month:    p.Month,
		Status:   p.Status,
		ClosedAt: p.ClosedAt,
		ClosedBy: p.ClosedBy,
		LockedAt: p.LockedAt,
		LockedBy: p.LockedBy,
		Summary:  p.Summary,
		Checks:   p.Checks,
		History:  p.History,
	}
}

func (h *PeriodHandler) yearMonth(c *gin.Context) (int, int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		h.BadRequest(c, "Invalid year")
		return 0, 0, false
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		h.BadRequest(c, "Invalid month")
		return 0, 0, false
	}
	return year, month, true
}

// RunChecks runs the pre-close check suite without changing the period
func (h *PeriodHandler) RunChecks(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}
	year, month, ok := h.yearMonth(c)
	if !ok {
		return
	}

	checks, canClose, err := h.closing.RunChecks(c.Request.Context(), companyID, year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ChecksResponse{Checks: checks, CanClose: canClose})
}

// GetPeriod returns the period with its summary and audit history
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}
	year, month, ok := h.yearMonth(c)
	if !ok {
		return
	}

	p, err := h.closing.GetPeriod(c.Request.Context(), companyID, year, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPeriodResponse(p))
}

// Close runs the check suite and closes the period when every blocking
// check passes. With force set, failing checks are recorded in the audit
// history instead of aborting the close.
func (h *PeriodHandler) Close(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}
	year, month, ok := h.yearMonth(c)
	if !ok {
		return
	}

	var req CloseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
			return
		}
	}

	result, err := h.closing.Close(c.Request.Context(), companyID, year, month, userID, req.Force)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Lock makes a closed period permanently immutable
func (h *PeriodHandler) Lock(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}
	year, month, ok := h.yearMonth(c)
	if !ok {
		return
	}

	result, err := h.closing.Lock(c.Request.Context(), companyID, year, month, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Reopen reverts a closed period to open, recording the justification
func (h *PeriodHandler) Reopen(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return
	}
	year, month, ok := h.yearMonth(c)
	if !ok {
		return
	}

	var req ReopenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}

	result, err := h.closing.Reopen(c.Request.Context(), companyID, year, month, userID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RegisterRoutes registers all period routes
func (h *PeriodHandler) RegisterRoutes(rg *gin.RouterGroup) {
	periods := rg.Group("/periods")
	{
		periods.GET("/:year/:month", h.GetPeriod)
		periods.GET("/:year/:month/checks", h.RunChecks)
		periods.POST("/:year/:month/close", h.Close)
		periods.POST("/:year/:month/lock", h.Lock)
		periods.POST("/:year/:month/reopen", h.Reopen)
	}
}
