package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salesflow/internal/domain/catalogs/customer"
	"salesflow/internal/domain/catalogs/item"
	"salesflow/internal/infrastructure/http/v1/dto"
	"salesflow/internal/infrastructure/http/v1/handlers"
	"salesflow/internal/infrastructure/http/v1/middleware"
	"salesflow/pkg/logger"
)

// Roles checked on mutating routes. Admins pass every check.
const (
	RoleSales   = "sales"
	RoleManager = "manager"
)

// proofEnvelope is the multipart overhead allowed on top of a proof image
// when the idempotency middleware buffers the body.
const proofEnvelope = 1 << 20

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the main database pool (for health checks)
	Pool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Metrics observes request latency; Gatherer backs /metrics. Both optional.
	Metrics  middleware.RequestObserver
	Gatherer prometheus.Gatherer

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// IdempotencyStore is used when IdempotencyEnabled is set
	IdempotencyStore   middleware.IdempotencyStore
	IdempotencyEnabled bool

	// MaxProofSize caps proof image uploads in bytes
	MaxProofSize int64

	Sales     handlers.SalesService
	Audit     handlers.AuditReader
	Items     handlers.CatalogService[*item.Item]
	Customers handlers.CatalogService[*customer.Customer]
	Stock     handlers.StockReader

	// HealthChecks are extra dependencies reported by /health/ready
	HealthChecks map[string]handlers.Pinger
	Version      string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger, cfg.Metrics))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.IdempotencyEnabled && cfg.IdempotencyStore != nil {
		v1.Use(middleware.Idempotency(cfg.IdempotencyStore, cfg.MaxProofSize+proofEnvelope))
	}

	base := handlers.NewBaseHandler()
	registerSalesRoutes(v1, base, cfg)
	registerCatalogRoutes(v1, base, cfg)

	if cfg.Stock != nil {
		stockHandler := handlers.NewStockHandler(base, cfg.Stock)
		v1.GET("/stock/:itemId/:warehouseId", stockHandler.Get)
	}

	return router
}

func registerSalesRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.Sales == nil {
		return
	}
	h := handlers.NewSalesHandler(base, cfg.Sales, cfg.Audit, cfg.MaxProofSize)
	write := middleware.RequireRole(RoleSales, RoleManager)

	salesGroup := rg.Group("/sales")
	RegisterDocumentRoutes(salesGroup.Group("/documents"), h, RoleSales, RoleManager)
	salesGroup.POST("/quotations/:id/convert", write, h.ConvertQuotation)
	salesGroup.POST("/orders/:id/convert", write, h.ConvertOrder)

	rg.GET("/customers/:id/credit", h.CreditCheck)
}

func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	catalogs := rg.Group("/catalog")

	if cfg.Items != nil {
		h := handlers.NewCatalogHandler[*item.Item, dto.ItemRequest](
			base, cfg.Items, dto.ItemRequest.ToEntity, dto.ItemRequest.Apply)
		RegisterCatalogRoutes(catalogs.Group("/items"), h, RoleManager)
	}

	if cfg.Customers != nil {
		h := handlers.NewCatalogHandler[*customer.Customer, dto.CustomerRequest](
			base, cfg.Customers, dto.CustomerRequest.ToEntity, dto.CustomerRequest.Apply)
		RegisterCatalogRoutes(catalogs.Group("/customers"), h, RoleManager, RoleSales)
	}
}
