package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
	"github.com/21andrewchang/hermes/internal/pdf"
	"github.com/21andrewchang/hermes/internal/report"
	"github.com/21andrewchang/hermes/internal/repository"
	"github.com/21andrewchang/hermes/internal/storage"
)

// maxUploadBytes caps invoice uploads at 20MB.
const maxUploadBytes = 20 << 20

// InvoiceStore is the invoice persistence surface the handlers need.
type InvoiceStore interface {
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	List(ctx context.Context) ([]*entity.Invoice, error)
	UpdateStatus(ctx context.Context, id string, status entity.InvoiceStatus) (*entity.Invoice, error)
	Requeue(ctx context.Context, id string) error
}

// IssueStore is the issue persistence surface the handlers need.
type IssueStore interface {
	Create(ctx context.Context, issue *entity.Issue) error
	List(ctx context.Context) ([]entity.Issue, error)
}

// FileStore saves uploaded documents.
type FileStore interface {
	Save(ctx context.Context, path string, content []byte) error
}

// QueueNudger wakes the extraction worker after an upload or requeue so
// processing starts without waiting for the next poll tick.
type QueueNudger interface {
	Nudge()
}

// InvoiceExporter renders invoices into a downloadable workbook.
type InvoiceExporter interface {
	Export(invoices []*entity.Invoice) ([]byte, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoices InvoiceStore
	issues   IssueStore
	files    FileStore
	queue    QueueNudger
	exporter InvoiceExporter
	logger   *zap.Logger

	// pageCount is swappable so handler tests do not need real PDF bytes.
	pageCount func(content []byte) (int, error)
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	invoices InvoiceStore,
	issues IssueStore,
	files FileStore,
	queue QueueNudger,
	exporter InvoiceExporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		invoices:  invoices,
		issues:    issues,
		files:     files,
		queue:     queue,
		exporter:  exporter,
		logger:    logger,
		pageCount: pdf.PageCount,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// UpdateInvoiceRequest is the PATCH body for invoice status changes.
type UpdateInvoiceRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateIssueRequest is the POST body for new maintenance issues.
type CreateIssueRequest struct {
	ReportedAt  *time.Time `json:"reported_at"`
	Building    *string    `json:"building"`
	Unit        *string    `json:"unit"`
	Description *string    `json:"description"`
	Action      *string    `json:"action"`
	Status      string     `json:"status"`
	IsDraft     bool       `json:"is_draft"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// UploadInvoice handles POST /api/v1/invoices. The document is validated and
// stored synchronously; extraction runs in the background queue, so the
// created record comes back with a pending processing status.
func (h *Handlers) UploadInvoice(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing file upload",
		})
		return
	}

	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Error:   "file too large",
		})
		return
	}

	if ext := strings.ToLower(filepath.Ext(fileHeader.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "only PDF uploads are supported",
		})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to read upload",
		})
		return
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to read upload",
		})
		return
	}

	pageCount, err := h.pageCount(content)
	if err != nil {
		h.logger.Warn("Rejected unreadable PDF upload",
			zap.String("file_name", fileHeader.Filename),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "file is not a readable PDF",
		})
		return
	}

	now := time.Now().UTC()
	path := storage.BuildPath(fileHeader.Filename, now)

	if err := h.files.Save(c.Request.Context(), path, content); err != nil {
		h.logger.Error("Failed to store upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to store file",
		})
		return
	}

	inv := &entity.Invoice{
		ID:               uuid.NewString(),
		UploadedAt:       now,
		FilePath:         path,
		FileName:         fileHeader.Filename,
		PageCount:        pageCount,
		Status:           entity.InvoiceStatusPending,
		ProcessingStatus: entity.ProcessingPending,
	}

	if err := h.invoices.Create(c.Request.Context(), inv); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to create invoice record",
		})
		return
	}

	h.queue.Nudge()

	h.logger.Info("Invoice uploaded",
		zap.String("invoice_id", inv.ID),
		zap.String("file_name", inv.FileName),
		zap.Int("page_count", pageCount))

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    inv,
	})
}

// ListInvoices handles GET /api/v1/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	invoices, err := h.invoices.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve invoices",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    invoices,
	})
}

// GetInvoice handles GET /api/v1/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id := c.Param("id")

	inv, err := h.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve invoice",
		})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "invoice not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    inv,
	})
}

// UpdateInvoice handles PATCH /api/v1/invoices/:id. Only the business status
// is writable; extraction results are owned by the pipeline.
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	id := c.Param("id")

	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	status := entity.InvoiceStatus(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid status: " + req.Status,
		})
		return
	}

	inv, err := h.invoices.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		h.logger.Error("Failed to update invoice", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to update invoice",
		})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "invoice not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    inv,
	})
}

// ReprocessInvoice handles POST /api/v1/invoices/:id/reprocess. Only failed
// invoices can re-enter the queue.
func (h *Handlers) ReprocessInvoice(c *gin.Context) {
	id := c.Param("id")

	inv, err := h.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve invoice",
		})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "invoice not found",
		})
		return
	}

	if err := h.invoices.Requeue(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			h.logger.Warn("Reprocess rejected",
				zap.String("id", id),
				zap.String("processing_status", string(inv.ProcessingStatus)))
			c.JSON(http.StatusConflict, Response{
				Success: false,
				Error:   "only failed invoices can be reprocessed",
			})
			return
		}
		h.logger.Error("Failed to requeue invoice",
			zap.String("id", id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to requeue invoice",
		})
		return
	}

	h.queue.Nudge()

	h.logger.Info("Invoice requeued", zap.String("invoice_id", id))

	c.JSON(http.StatusAccepted, Response{
		Success: true,
	})
}

// ExportInvoices handles GET /api/v1/invoices/export
func (h *Handlers) ExportInvoices(c *gin.Context) {
	invoices, err := h.invoices.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve invoices",
		})
		return
	}

	data, err := h.exporter.Export(invoices)
	if err != nil {
		h.logger.Error("Failed to export invoices", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to generate export",
		})
		return
	}

	fileName := report.FileName(time.Now().UTC())
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ListIssues handles GET /api/v1/issues
func (h *Handlers) ListIssues(c *gin.Context) {
	issues, err := h.issues.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list issues", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve issues",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    issues,
	})
}

// CreateIssue handles POST /api/v1/issues
func (h *Handlers) CreateIssue(c *gin.Context) {
	var req CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	status := entity.IssueStatus(req.Status)
	if req.Status == "" {
		status = entity.IssueStatusPending
	}

	issue := &entity.Issue{
		ID:          uuid.NewString(),
		ReportedAt:  req.ReportedAt,
		Building:    req.Building,
		Unit:        req.Unit,
		Description: req.Description,
		Action:      req.Action,
		Status:      status,
		IsDraft:     req.IsDraft,
	}

	if err := h.issues.Create(c.Request.Context(), issue); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to create issue",
		})
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    issue,
	})
}
