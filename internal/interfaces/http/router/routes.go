package router

import (
	"github.com/erp/procurement/internal/interfaces/http/handler"
	"github.com/erp/procurement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// NewOrderRoutes groups the purchase order, receipt and ledger endpoints
func NewOrderRoutes(orders *handler.OrderHandler, receipts *handler.ReceiptHandler) *DomainGroup {
	g := NewDomainGroup("orders", "/orders")
	g.POST("", orders.Create)
	g.GET("", orders.List)
	g.GET("/number/:order_number", orders.GetByOrderNumber)
	g.GET("/:id", orders.GetByID)
	g.POST("/:id/approve", orders.Approve)
	g.POST("/:id/cancel", orders.Cancel)
	g.POST("/:id/close-short", orders.CloseShort)

	g.POST("/:id/receipts", receipts.Submit)
	g.GET("/:id/receipts", receipts.List)
	g.POST("/:id/receipts/:receiptId/reverse", receipts.Reverse)
	g.GET("/:id/fulfillment", receipts.Fulfillment)
	g.GET("/:id/ledger-audit", receipts.LedgerAudit)
	g.POST("/:id/ledger-repair", receipts.LedgerRepair)
	return g
}

// NewSystemRoutes groups service information and outbox administration.
// outbox may be nil when the outbox is disabled.
func NewSystemRoutes(system *handler.SystemHandler, outbox *handler.OutboxHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	g.GET("/info", system.GetSystemInfo)
	g.GET("/ping", system.Ping)

	if outbox != nil {
		o := g.Group("outbox", "/outbox")
		o.GET("/stats", outbox.GetStats)
		o.GET("/dead", outbox.GetDeadLetterEntries)
		o.POST("/dead/retry-all", outbox.RetryAllDeadEntries)
		o.GET("/:id", outbox.GetEntry)
		o.POST("/:id/retry", outbox.RetryDeadEntry)
	}
	return g
}

// RegisterOperational mounts the unversioned health and documentation routes.
// swagger may be nil to leave documentation unmounted.
func RegisterOperational(engine *gin.Engine, system *handler.SystemHandler, swagger gin.HandlerFunc, swaggerCfg middleware.SwaggerConfig) {
	engine.GET("/health", system.Ready)
	engine.GET("/health/live", system.Live)
	engine.GET("/health/ready", system.Ready)

	if swagger != nil {
		engine.GET("/swagger/*any", middleware.SwaggerProtection(swaggerCfg), swagger)
	}

	engine.NoRoute(system.RouteNotFound)
}
