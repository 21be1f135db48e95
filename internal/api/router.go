package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/refund-authorization/internal/handlers"
	"github.com/akylbek/payment-system/refund-authorization/internal/interfaces"
	"github.com/akylbek/payment-system/refund-authorization/internal/middleware"
	"github.com/akylbek/payment-system/refund-authorization/internal/service"
	"github.com/akylbek/payment-system/refund-authorization/internal/telemetry"
)

func NewRouter(workflow *service.Workflow, queries *service.QueryService, resolver interfaces.ActorResolver) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "refund-authorization"})
	})

	refundHandler := handlers.NewRefundHandler(workflow)
	queryHandler := handlers.NewQueryHandler(queries)

	v1 := r.Group("/api/v1", middleware.Authenticate(resolver, telemetry.Logger))
	v1.POST("/refunds", refundHandler.RequestRefund)
	v1.POST("/refunds/:id/authorize", refundHandler.Authorize)
	v1.POST("/refunds/:id/decide", refundHandler.Decide)
	v1.GET("/refunds", queryHandler.ListRefunds)
	v1.GET("/refunds/stats", queryHandler.Stats)
	v1.GET("/refunds/:id", queryHandler.GetRefund)

	return r
}
