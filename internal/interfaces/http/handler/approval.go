package handler

import (
	"time"

	"github.com/erp/docledger/internal/application/workflow"
	"github.com/erp/docledger/internal/domain/approval"
	"github.com/erp/docledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalHandler handles approval workflow endpoints
type ApprovalHandler struct {
	BaseHandler
	workflow *workflow.Service
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(w *workflow.Service) *ApprovalHandler {
	return &ApprovalHandler{workflow: w}
}

// DecisionRequest is the body for approve and reject actions
type DecisionRequest struct {
	Role    string `json:"role" binding:"required,oneof=accountant manager executive admin"`
	Comment string `json:"comment" binding:"max=500"`
}

// EscalateRequest is the body for a manual escalation
type EscalateRequest struct {
	Role   string `json:"role" binding:"required,oneof=accountant manager executive admin"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// DelegateRequest is the body for delegating an approval
type DelegateRequest struct {
	Role     string `json:"role" binding:"required,oneof=accountant manager executive admin"`
	Delegate string `json:"delegate" binding:"required,uuid"`
	Comment  string `json:"comment" binding:"max=500"`
}

// ApprovalResponse represents an approval request in API responses
type ApprovalResponse struct {
	ID           uuid.UUID       `json:"id"`
	JobID        uuid.UUID       `json:"job_id"`
	Amount       decimal.Decimal `json:"amount"`
	Level        approval.Level  `json:"level"`
	Status       approval.Status `json:"status"`
	RequiresDual bool            `json:"requires_dual"`
	Delegate     *uuid.UUID      `json:"delegate,omitempty"`
	SupersededBy *uuid.UUID      `json:"superseded_by,omitempty"`
	DueAt        time.Time       `json:"due_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toApprovalResponse(r *approval.Request) ApprovalResponse {
	return ApprovalResponse{
		ID:           r.ID,
		JobID:        r.JobID,
		Amount:       r.Amount,
		Level:        r.Level,
		Status:       r.Status,
		RequiresDual: r.RequiresDual,
		Delegate:     r.Delegate,
		SupersededBy: r.SupersededBy,
		DueAt:        r.DueAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (h *ApprovalHandler) actor(c *gin.Context, role string) (workflow.Actor, bool) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identification required")
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: userID, Role: approval.Role(role)}, true
}

func (h *ApprovalHandler) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid approval request ID format")
		return uuid.Nil, false
	}
	return id, true
}

// Approve records an approval decision. On a single-approver request the
// underlying document is posted; a dual-control request waits for the
// second distinct approver.
func (h *ApprovalHandler) Approve(c *gin.Context) {
	requestID, ok := h.requestID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}

	actor, ok := h.actor(c, req.Role)
	if !ok {
		return
	}

	updated, err := h.workflow.Approve(c.Request.Context(), requestID, actor, req.Comment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toApprovalResponse(updated))
}

// Reject records a rejection, settling the request
func (h *ApprovalHandler) Reject(c *gin.Context) {
	requestID, ok := h.requestID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}

	actor, ok := h.actor(c, req.Role)
	if !ok {
		return
	}

	updated, err := h.workflow.Reject(c.Request.Context(), requestID, actor, req.Comment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toApprovalResponse(updated))
}

// Escalate supersedes the request with a new one a tier up
func (h *ApprovalHandler) Escalate(c *gin.Context) {
	requestID, ok := h.requestID(c)
	if !ok {
		return
	}

	var req EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}

	actor, ok := h.actor(c, req.Role)
	if !ok {
		return
	}

	replacement, err := h.workflow.Escalate(c.Request.Context(), requestID, actor, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toApprovalResponse(replacement))
}

// Delegate assigns the pending decision to another user at the same tier
func (h *ApprovalHandler) Delegate(c *gin.Context) {
	requestID, ok := h.requestID(c)
	if !ok {
		return
	}

	var req DelegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}
	delegate, err := uuid.Parse(req.Delegate)
	if err != nil {
		h.BadRequest(c, "Invalid delegate ID format")
		return
	}

	actor, ok := h.actor(c, req.Role)
	if !ok {
		return
	}

	updated, err := h.workflow.Delegate(c.Request.Context(), requestID, actor, delegate, req.Comment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toApprovalResponse(updated))
}

// RegisterRoutes registers all approval routes
func (h *ApprovalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	approvals := rg.Group("/approvals")
	{
		approvals.POST("/:id/approve", h.Approve)
		approvals.POST("/:id/reject", h.Reject)
		approvals.POST("/:id/escalate", h.Escalate)
		approvals.POST("/:id/delegate", h.Delegate)
	}
}
