package handler

import (
	"io"
	"time"

	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/domain/anomaly"
	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles document submission and job inspection endpoints
type DocumentHandler struct {
	BaseHandler
	pipeline *pipeline.Orchestrator
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(p *pipeline.Orchestrator) *DocumentHandler {
	return &DocumentHandler{pipeline: p}
}

// SubmitResponse is returned when a document is accepted for processing
type SubmitResponse struct {
	JobID  uuid.UUID       `json:"job_id"`
	Status document.Status `json:"status"`
}

// JobResponse represents a document job in API responses
type JobResponse struct {
	ID             uuid.UUID                `json:"id"`
	FileName       string                   `json:"file_name"`
	ContentType    string                   `json:"content_type,omitempty"`
	SizeBytes      int64                    `json:"size_bytes"`
	Status         document.Status          `json:"status"`
	ParentID       *uuid.UUID               `json:"parent_id,omitempty"`
	Classification *document.Classification `json:"classification,omitempty"`
	Risk           *anomaly.Result          `json:"risk,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Posted         bool                     `json:"posted"`
	VoucherNumber  string                   `json:"voucher_number,omitempty"`
	PostedAt       *time.Time               `json:"posted_at,omitempty"`
	DocumentDate   *time.Time               `json:"document_date,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func toJobResponse(j *document.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		FileName:       j.FileName,
		ContentType:    j.ContentType,
		SizeBytes:      j.SizeBytes,
		Status:         j.Status,
		ParentID:       j.ParentID,
		Classification: j.Class,
		Risk:           j.Risk,
		Error:          j.Error,
		Posted:         j.Posted,
		VoucherNumber:  j.VoucherNo,
		PostedAt:       j.PostedAt,
		DocumentDate:   j.DocDate,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

// Submit accepts a scanned document via multipart upload and queues it for
// processing. The pipeline runs asynchronously; poll the job for progress.
func (h *DocumentHandler) Submit(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "Multipart field 'file' is required")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.InternalError(c, "Failed to read uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.InternalError(c, "Failed to read uploaded file")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	requestID := getRequestID(c)

	job, err := h.pipeline.Submit(c.Request.Context(), companyID, fileHeader.Filename, contentType, data, requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// GetJob returns a single document job scoped to the caller's company
func (h *DocumentHandler) GetJob(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	job, err := h.pipeline.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if job.CompanyID != companyID {
		h.NotFound(c, "Job not found")
		return
	}

	h.Success(c, toJobResponse(job))
}

// ListJobs returns the company's document jobs, newest first
func (h *DocumentHandler) ListJobs(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid pagination parameters")
		return
	}

	offset := (req.Page - 1) * req.PageSize
	jobs, err := h.pipeline.ListJobs(c.Request.Context(), companyID, req.PageSize, offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]JobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}
	h.Success(c, items)
}

// ResumeJob restarts a job stuck mid-pipeline from its last durable stage
func (h *DocumentHandler) ResumeJob(c *gin.Context) {
	companyID, err := getCompanyID(c)
	if err != nil {
		h.Unauthorized(c, "Company identification required")
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	job, err := h.pipeline.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if job.CompanyID != companyID {
		h.NotFound(c, "Job not found")
		return
	}

	resumed, err := h.pipeline.Resume(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, SubmitResponse{JobID: resumed.ID, Status: resumed.Status})
}

// OverrideDuplicateRequest is the body for a duplicate override
type OverrideDuplicateRequest struct {
	OriginalJobID string `json:"original_job_id" binding:"required,uuid"`
	Reason        string `json:"reason" binding:"required,min=10,max=500"`
}

// OverrideDuplicateResponse returns the recorded override
type OverrideDuplicateResponse struct {
	OverrideID    uuid.UUID `json:"override_id"`
	OriginalJobID uuid.UUID `json:"original_job_id"`
	NewJobID      uuid.UUID `json:"new_job_id"`
	Reason        string    `json:"reason"`
	ApprovedBy    uuid.UUID `json:"approved_by"`
}

// OverrideDuplicate records a justified override for a job parked as a
// suspected duplicate, releasing it for approval and posting
func (h *DocumentHandler) OverrideDuplicate(c *gin.Context) {
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

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}

	var req OverrideDuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, []dto.ValidationDetail{
			{Field: "body", Message: err.Error()},
		})
		return
	}
	originalJobID, err := uuid.Parse(req.OriginalJobID)
	if err != nil {
		h.BadRequest(c, "Invalid original job ID format")
		return
	}

	override, err := h.pipeline.OverrideDuplicate(c.Request.Context(), companyID, jobID, originalJobID, req.Reason, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, OverrideDuplicateResponse{
		OverrideID:    override.ID,
		OriginalJobID: override.OriginalJobID,
		NewJobID:      override.NewJobID,
		Reason:        override.Reason,
		ApprovedBy:    override.ApprovedBy,
	})
}

// RegisterRoutes registers all document routes
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	documents := rg.Group("/documents")
	{
		documents.POST("", h.Submit)
		documents.GET("", h.ListJobs)
		documents.GET("/:id", h.GetJob)
		documents.POST("/:id/resume", h.ResumeJob)
		documents.POST("/:id/override-duplicate", h.OverrideDuplicate)
	}
}
