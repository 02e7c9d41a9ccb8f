// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"ordertx/internal/domain/audit"
	"ordertx/internal/domain/order"
	"ordertx/internal/domain/product"
	"ordertx/internal/infrastructure/http/v1/handlers"
	"ordertx/internal/infrastructure/http/v1/middleware"
	"ordertx/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	Orders   *order.Service
	Products *product.Service
	Audit    *audit.Recorder

	// Storage backs the readiness probe
	Storage handlers.Pinger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Order matters: Recovery runs inside ErrorHandler so a recovered panic
	// is still rendered, and inside Logger so it is still logged.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.Storage)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	api := router.Group("/api/v1")

	registerOrderRoutes(api.Group("/orders"), handlers.NewOrderHandler(base, cfg.Orders))
	registerProductRoutes(api.Group("/products"), handlers.NewProductHandler(base, cfg.Products))

	auditHandler := handlers.NewAuditHandler(base, cfg.Audit)
	api.GET("/audit/:entity/:id", auditHandler.History)

	return router
}

// NewHandler returns the router wrapped with response compression.
func NewHandler(cfg RouterConfig) http.Handler {
	return gzhttp.GzipHandler(NewRouter(cfg))
}

func registerOrderRoutes(rg *gin.RouterGroup, h *handlers.OrderHandler) {
	rg.POST("", h.Place)
	rg.POST("/batch", h.PlaceBatch)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id/status", h.UpdateStatus)
	rg.DELETE("/:id", h.Delete)
}

func registerProductRoutes(rg *gin.RouterGroup, h *handlers.ProductHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.POST("/import", h.Import)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/stock", h.AdjustStock)
}
