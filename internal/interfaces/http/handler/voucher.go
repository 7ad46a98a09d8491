package handler

import (
	"github.com/erp/docledger/internal/domain/sequence"
	"github.com/erp/docledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// VoucherHandler handles voucher numbering endpoints
type VoucherHandler struct {
	BaseHandler
	sequences *sequence.Service
}

// NewVoucherHandler creates a new VoucherHandler
func NewVoucherHandler(s *sequence.Service) *VoucherHandler {
	return &VoucherHandler{sequences: s}
}

// NextNumberRequest is the body for minting the next voucher number
type NextNumberRequest struct {
	Series string `json:"series" binding:"required,len=1"`
	Year   int    `json:"year" binding:"required,min=2000,max=2999"`
}

// ReserveRequest is the body for reserving a contiguous number block
type ReserveRequest struct {
	Series string `json:"series" binding:"required,len=1"`
	Year   int    `json:"year" binding:"required,min=2000,max=2999"`
	Count  int64  `json:"count" binding:"required,min=1,max=1000"`
}

// ValidateRequest is the query for a sequence audit
type ValidateRequest struct {
	Series string `form:"series" binding:"required,len=1"`
	Year   int    `form:"year" binding:"required,min=2000,max=2999"`
}

// NextNumber mints the next gap-free voucher number for the series
func (h *VoucherHandler) NextNumber(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	var req NextNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}

	number, err := h.sequences.Next(c.Request.Context(), companyID, req.Series, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, number)
}

// Reserve atomically claims a contiguous block of voucher numbers for
// batch posting
func (h *VoucherHandler) Reserve(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: err.Error()}})
		return
	}

	block, err := h.sequences.Reserve(c.Request.Context(), companyID, req.Series, req.Year, req.Count)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, block)
}

// ValidateSequence audits a minted series for gaps and duplicates
func (h *VoucherHandler) ValidateSequence(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	var req ValidateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "query", Message: err.Error()}})
		return
	}

	result, err := h.sequences.ValidateSequence(c.Request.Context(), companyID, req.Series, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RegisterRoutes registers all voucher numbering routes
func (h *VoucherHandler) RegisterRoutes(rg *gin.RouterGroup) {
	vouchers := rg.Group("/vouchers")
	{
		vouchers.POST("/next-number", h.NextNumber)
		vouchers.POST("/reserve", h.Reserve)
		vouchers.GET("/sequence/validate", h.ValidateSequence)
	}
}
