// internal/app/router.go
package app

import (
	billingHandler "billing-service/internal/handlers/billing"
	"billing-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	BillingHandler   *billingHandler.BillingHandler
	InvoiceHandler   *billingHandler.InvoiceHandler
	WSHandler        *billingHandler.WebSocketHandler
	AuthMiddleware   *middleware.AuthMiddleware
	AccessMiddleware *middleware.AccessMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Billing ====================
	// Billing routes bypass the access gate: a suspended account must
	// still be able to see its invoices and pay.
	billing := api.Group("/billing")
	billing.Use(h.AuthMiddleware.Auth())
	{
		billing.POST("/subscriptions", h.BillingHandler.Checkout)
		billing.GET("/subscription", h.BillingHandler.GetSubscription)
		billing.POST("/subscriptions/:id/cancel", h.BillingHandler.CancelSubscription)

		billing.GET("/invoices", h.InvoiceHandler.List)
		billing.GET("/invoices/number/:number", h.InvoiceHandler.GetByNumber)
		billing.POST("/invoices/:id/pay", h.BillingHandler.PayInvoice)

		billing.GET("/status", h.BillingHandler.GetStatus)
		billing.GET("/access", h.BillingHandler.CheckAccess)
	}

	// ==================== Event Feed ====================
	// The live feed counts as a dashboard feature, so it sits behind the
	// access gate like any other screen.
	feed := api.Group("/billing/ws")
	feed.Use(h.AuthMiddleware.Auth(), h.AccessMiddleware.RequireAccess("dashboard"))
	{
		feed.GET("", h.WSHandler.HandleConnection)
	}

	logger.Info("routes registered")
}
