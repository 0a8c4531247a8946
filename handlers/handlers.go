package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"civicspot/database"
	"civicspot/ingest"
	"civicspot/models"
)

// IngestService is the submission pipeline consumed by the HTTP layer.
type IngestService interface {
	Submit(ctx context.Context, userID string, req *models.SubmitReportRequest) (*models.SubmitReportResponse, error)
	ChangeStatus(ctx context.Context, reportID, newStatus, changedBy string) (*models.Report, error)
}

// ReportStore is the read/upvote surface consumed by the HTTP layer.
type ReportStore interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, category, status string, includeArchived bool) ([]models.Report, error)
	Upvote(ctx context.Context, reportID, userID string) (*models.UpvoteResult, error)
}

// Handlers holds the HTTP handlers for the report API.
type Handlers struct {
	ingest IngestService
	store  ReportStore
}

// NewHandlers creates the handler set.
func NewHandlers(ingestService IngestService, store ReportStore) *Handlers {
	return &Handlers{ingest: ingestService, store: store}
}

// SubmitReport handles POST /api/v3/reports. A new report returns 201. A
// submission that matched an existing report returns 409 with the conflict
// details; the submission was counted as an upvote, so the device treats it
// as done.
func (h *Handlers) SubmitReport(c *gin.Context) {
	userID := c.GetString("user_id")

	var req models.SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.ingest.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ingest.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service busy, retry later"})
		default:
			log.Errorf("Submit failed for user %s: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	if resp.Duplicate != nil {
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetReport handles GET /api/v3/reports/:id.
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.store.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.Errorf("GetReport failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListReports handles GET /api/v3/reports with optional category, status and
// include_archived query filters.
func (h *Handlers) ListReports(c *gin.Context) {
	category := c.Query("category")
	if category != "" && !models.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	status := c.Query("status")
	if status != "" && !models.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	includeArchived := c.Query("include_archived") == "true"

	reports, err := h.store.ListReports(c.Request.Context(), category, status, includeArchived)
	if err != nil {
		log.Errorf("ListReports failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// UpvoteReport handles POST /api/v3/reports/:id/upvote. Idempotent: a repeat
// upvote returns the current count with already_upvoted set.
func (h *Handlers) UpvoteReport(c *gin.Context) {
	userID := c.GetString("user_id")
	reportID := c.Param("id")

	if _, err := h.store.GetReport(c.Request.Context(), reportID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		log.Errorf("UpvoteReport lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	result, err := h.store.Upvote(c.Request.Context(), reportID, userID)
	if err != nil {
		log.Errorf("UpvoteReport failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateStatus handles PUT /api/v3/reports/:id/status.
func (h *Handlers) UpdateStatus(c *gin.Context) {
	userID := c.GetString("user_id")

	var req models.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	report, err := h.ingest.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status, userID)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		default:
			log.Errorf("UpdateStatus failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "civicspot-ingest"})
}
