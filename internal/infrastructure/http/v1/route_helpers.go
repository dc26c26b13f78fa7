// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"salesflow/internal/infrastructure/http/v1/middleware"
)

// CatalogRouteHandler defines the interface for catalog handlers.
type CatalogRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
}

// RegisterCatalogRoutes registers standard CRUD routes for a catalog.
// Reads are open to any authenticated user; writes need one of writeRoles.
//
// Usage:
//
//	handler := handlers.NewCatalogHandler(base, itemService, dto.ItemRequest.ToEntity, dto.ItemRequest.Apply)
//	RegisterCatalogRoutes(catalogs.Group("/items"), handler, RoleManager)
func RegisterCatalogRoutes(group *gin.RouterGroup, handler CatalogRouteHandler, writeRoles ...string) {
	write := middleware.RequireRole(writeRoles...)

	group.GET("", handler.List)
	group.POST("", write, handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", write, handler.Update)
}

// SalesRouteHandler defines the interface for the sales document handler.
type SalesRouteHandler interface {
	CatalogRouteHandler
	UpdateStatus(c *gin.Context)
	History(c *gin.Context)
	Transitions(c *gin.Context)
	Audit(c *gin.Context)
}

// RegisterDocumentRoutes registers CRUD and lifecycle routes for sales documents.
func RegisterDocumentRoutes(group *gin.RouterGroup, handler SalesRouteHandler, writeRoles ...string) {
	write := middleware.RequireRole(writeRoles...)

	group.GET("", handler.List)
	group.POST("", write, handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", write, handler.Update)
	group.POST("/:id/status", write, handler.UpdateStatus)
	group.GET("/:id/history", handler.History)
	group.GET("/:id/transitions", handler.Transitions)
	group.GET("/:id/audit", handler.Audit)
}
