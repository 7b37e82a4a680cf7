package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loopmarket/payment-service/internal/handlers"
	"github.com/loopmarket/payment-service/internal/interfaces"
	"github.com/loopmarket/payment-service/internal/service"
	"github.com/loopmarket/payment-service/internal/telemetry"
)

func NewRouter(repo interfaces.PaymentRepository, orchestrator *service.Orchestrator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-service"})
	})

	paymentHandler := handlers.NewPaymentHandler(repo, orchestrator)
	r.POST("/payments/initiate", paymentHandler.InitiatePayment)
	r.POST("/payments/mpesa/callback", paymentHandler.MpesaCallback)
	r.GET("/payments/:id", paymentHandler.GetPayment)

	return r
}
