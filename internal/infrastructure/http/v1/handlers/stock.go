package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"salesflow/internal/core/id"
	"salesflow/internal/domain/registers/itemledger"
)

// StockReader reads on-hand quantities.
type StockReader interface {
	GetStock(ctx context.Context, itemID, warehouseID id.ID) (itemledger.Stock, error)
}

// StockHandler serves on-hand stock.
type StockHandler struct {
	*BaseHandler
	stock StockReader
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, stock StockReader) *StockHandler {
	return &StockHandler{BaseHandler: base, stock: stock}
}

// Get handles GET /stock/:itemId/:warehouseId.
func (h *StockHandler) Get(c *gin.Context) {
	itemID, ok := h.ParamID(c, "itemId")
	if !ok {
		return
	}
	warehouseID, ok := h.ParamID(c, "warehouseId")
	if !ok {
		return
	}

	s, err := h.stock.GetStock(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}
