package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/domain"
	"salesflow/internal/infrastructure/http/v1/dto"
)

// CatalogService is the CRUD surface of a catalog service.
type CatalogService[T entity.Validatable] interface {
	Create(ctx context.Context, entity T) error
	Update(ctx context.Context, entity T) error
	GetByID(ctx context.Context, entityID id.ID) (T, error)
	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error)
}

// CatalogHandler provides generic HTTP handlers for catalog entities.
type CatalogHandler[T entity.Validatable, Req any] struct {
	*BaseHandler
	service CatalogService[T]

	mapCreate func(req Req) T
	mapUpdate func(req Req, existing T)
}

// NewCatalogHandler creates a catalog handler. mapCreate builds a new entity
// from a request; mapUpdate applies a request to a loaded one.
func NewCatalogHandler[T entity.Validatable, Req any](
	base *BaseHandler,
	service CatalogService[T],
	mapCreate func(req Req) T,
	mapUpdate func(req Req, existing T),
) *CatalogHandler[T, Req] {
	return &CatalogHandler[T, Req]{
		BaseHandler: base,
		service:     service,
		mapCreate:   mapCreate,
		mapUpdate:   mapUpdate,
	}
}

// List handles GET /{catalog}.
func (h *CatalogHandler[T, Req]) List(c *gin.Context) {
	var q dto.ListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	result, err := h.service.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result, func(v T) T { return v }))
}

// Get handles GET /{catalog}/:id.
func (h *CatalogHandler[T, Req]) Get(c *gin.Context) {
	entityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	v, err := h.service.GetByID(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Create handles POST /{catalog}.
func (h *CatalogHandler[T, Req]) Create(c *gin.Context) {
	var req Req
	if !h.BindJSON(c, &req) {
		return
	}

	v := h.mapCreate(req)
	if err := h.service.Create(c.Request.Context(), v); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, v)
}

// Update handles PUT /{catalog}/:id.
func (h *CatalogHandler[T, Req]) Update(c *gin.Context) {
	entityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req Req
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	v, err := h.service.GetByID(ctx, entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.mapUpdate(req, v)

	if err := h.service.Update(ctx, v); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}
