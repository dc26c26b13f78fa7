package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/domain"
	"salesflow/internal/domain/credit"
	"salesflow/internal/domain/sales"
	"salesflow/internal/infrastructure/http/v1/dto"
	"salesflow/internal/infrastructure/storage/postgres"
)

// SalesService is the part of sales.Service the handler uses.
type SalesService interface {
	CreateDocument(ctx context.Context, cmd sales.CreateCommand) (*sales.SaveResult, error)
	UpdateDocument(ctx context.Context, cmd sales.UpdateCommand) (*sales.SaveResult, error)
	GetDocument(ctx context.Context, docID id.ID) (*sales.Document, error)
	ListDocuments(ctx context.Context, filter sales.ListFilter) (domain.ListResult[*sales.Document], error)
	UpdateStatus(ctx context.Context, cmd sales.StatusCommand) (*sales.StatusResult, error)
	GetStatusHistory(ctx context.Context, docID id.ID) ([]sales.StatusHistory, error)
	Convert(ctx context.Context, cmd sales.ConvertCommand) (*sales.SaveResult, error)
	CreditCheck(ctx context.Context, customerID id.ID) (*credit.Result, error)
}

// AuditReader returns the audit trail of an entity.
type AuditReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// SalesHandler serves quotations, sale orders and sales.
type SalesHandler struct {
	*BaseHandler
	service      SalesService
	audit        AuditReader
	maxProofSize int64
}

// NewSalesHandler creates a sales handler. audit may be nil.
func NewSalesHandler(base *BaseHandler, service SalesService, audit AuditReader, maxProofSize int64) *SalesHandler {
	return &SalesHandler{BaseHandler: base, service: service, audit: audit, maxProofSize: maxProofSize}
}

// List handles GET /sales/documents.
func (h *SalesHandler) List(c *gin.Context) {
	var q dto.DocumentListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	result, err := h.service.ListDocuments(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.DocumentList(result))
}

// Create handles POST /sales/documents.
func (h *SalesHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.CreateDocument(c.Request.Context(), req.ToCommand(h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// Get handles GET /sales/documents/:id.
func (h *SalesHandler) Get(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Update handles PUT /sales/documents/:id.
func (h *SalesHandler) Update(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.UpdateDocument(c.Request.Context(), req.ToCommand(docID, h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// UpdateStatus handles POST /sales/documents/:id/status. Accepts JSON or
// multipart form with an optional "proof" image.
func (h *SalesHandler) UpdateStatus(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBind(&req); err != nil {
		h.Error(c, apperror.NewValidation("invalid status request").WithDetail("error", err.Error()))
		return
	}

	cmd := sales.StatusCommand{
		DocumentID: docID,
		Status:     req.Status,
		Notes:      req.Notes,
		Actor:      h.Actor(c),
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		proof, closeFn, err := h.proofImage(c)
		if err != nil {
			h.Error(c, err)
			return
		}
		defer closeFn()
		cmd.Proof = proof
	}

	result, err := h.service.UpdateStatus(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// proofImage opens the "proof" form file. A missing file yields nil.
func (h *SalesHandler) proofImage(c *gin.Context) (*sales.ProofImage, func(), error) {
	fh, err := c.FormFile("proof")
	if err != nil {
		return nil, func() {}, nil
	}
	if fh.Size > h.maxProofSize {
		return nil, nil, apperror.NewValidation("proof image is too large").
			WithDetail("field", "proof").
			WithDetail("max_bytes", h.maxProofSize)
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		return nil, nil, apperror.NewValidation("proof must be an image or PDF").
			WithDetail("field", "proof").
			WithDetail("content_type", contentType)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, nil, apperror.NewValidation("cannot read proof image").WithCause(err)
	}
	return &sales.ProofImage{
		Filename:    fh.Filename,
		ContentType: contentType,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

// History handles GET /sales/documents/:id/history.
func (h *SalesHandler) History(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	history, err := h.service.GetStatusHistory(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": history})
}

// Transitions handles GET /sales/documents/:id/transitions.
func (h *SalesHandler) Transitions(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	allowed := []sales.Status{}
	if doc.Type.HasFulfillment() {
		allowed = append(allowed, sales.AllowedTransitions(doc.Status)...)
	}
	h.OK(c, gin.H{
		"status":          doc.Status,
		"inventoryStatus": doc.InventoryStatus,
		"allowed":         allowed,
	})
}

// Audit handles GET /sales/documents/:id/audit.
func (h *SalesHandler) Audit(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if h.audit == nil {
		h.OK(c, gin.H{"items": []postgres.AuditEntry{}})
		return
	}

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), sales.AuditEntity, docID, 100)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": entries})
}

// ConvertQuotation handles POST /sales/quotations/:id/convert.
func (h *SalesHandler) ConvertQuotation(c *gin.Context) {
	h.convert(c, entity.DocumentTypeQuotation)
}

// ConvertOrder handles POST /sales/orders/:id/convert.
func (h *SalesHandler) ConvertOrder(c *gin.Context) {
	h.convert(c, entity.DocumentTypeSaleOrder)
}

func (h *SalesHandler) convert(c *gin.Context, sourceType entity.DocumentType) {
	sourceID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ConvertRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Convert(c.Request.Context(), req.ToCommand(sourceID, sourceType, h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// CreditCheck handles GET /customers/:id/credit.
func (h *SalesHandler) CreditCheck(c *gin.Context) {
	customerID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.CreditCheck(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
