package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loopmarket/payment-service/internal/gateway"
	"github.com/loopmarket/payment-service/internal/interfaces"
	"github.com/loopmarket/payment-service/internal/models"
	"github.com/loopmarket/payment-service/internal/service"
	"github.com/loopmarket/payment-service/internal/telemetry"
)

type PaymentHandler struct {
	repo         interfaces.PaymentRepository
	orchestrator *service.Orchestrator
}

func NewPaymentHandler(repo interfaces.PaymentRepository, orchestrator *service.Orchestrator) *PaymentHandler {
	return &PaymentHandler{
		repo:         repo,
		orchestrator: orchestrator,
	}
}

type initiateRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	LoopID      string `json:"loop_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.orchestrator.Initiate(c.Request.Context(), req.UserID, req.LoopID, req.PhoneNumber)
	if err != nil {
		h.writeInitiateError(c, req, err)
		return
	}

	if result.AlreadyPurchased {
		c.JSON(http.StatusOK, gin.H{
			"status":  "already_purchased",
			"loop_id": req.LoopID,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":              "pending",
		"payment_id":          result.Payment.ID,
		"checkout_request_id": result.Payment.CorrelationID,
		"amount":              result.Payment.Amount,
	})
}

func (h *PaymentHandler) writeInitiateError(c *gin.Context, req initiateRequest, err error) {
	var rejected *gateway.PromptRejectedError
	switch {
	case errors.Is(err, service.ErrNotPremium):
		c.JSON(http.StatusBadRequest, gin.H{"error": "loop is not premium, no payment required"})
	case errors.Is(err, interfaces.ErrLoopNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "loop not found"})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": rejected.Error()})
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable, try again later"})
	default:
		telemetry.Logger.Error("payment initiation failed",
			zap.String("loop_id", req.LoopID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate payment"})
	}
}

// MpesaCallback receives the provider's asynchronous result. It always
// responds 200: a rejection here only causes the provider to redeliver a
// callback the orchestrator has already classified.
func (h *PaymentHandler) MpesaCallback(c *gin.Context) {
	var envelope models.STKCallbackEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		telemetry.Logger.Warn("undecodable provider callback", zap.Error(err))
		telemetry.CallbacksProcessed.WithLabelValues(string(service.CallbackMalformed)).Inc()
		h.acknowledge(c)
		return
	}

	h.orchestrator.HandleCallback(c.Request.Context(), &envelope.Body.STKCallback)
	h.acknowledge(c)
}

func (h *PaymentHandler) acknowledge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("id")

	p, err := h.repo.FindByID(c.Request.Context(), paymentID)
	if errors.Is(err, interfaces.ErrPaymentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch payment"})
		return
	}

	c.JSON(http.StatusOK, p)
}
