package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/middleware"
	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/service"
	"github.com/akylbek/payment-system/refund-authorization/internal/telemetry"
)

// RefundHandler serves the write side of the refund API.
type RefundHandler struct {
	workflow *service.Workflow
}

func NewRefundHandler(workflow *service.Workflow) *RefundHandler {
	return &RefundHandler{workflow: workflow}
}

type createRefundBody struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Note          string `json:"note"`
}

type decideBody struct {
	Decision models.Decision `json:"decision"`
	Reason   string          `json:"reason"`
}

func (h *RefundHandler) RequestRefund(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var body createRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		telemetry.Logger.Warn("Error decoding refund request", zap.Error(err))
		writeError(c, models.NewValidationError("body", "invalid request body"))
		return
	}

	rec, err := h.workflow.RequestRefund(c.Request.Context(), actor, service.RequestInput{
		TransactionID: body.TransactionID,
		Amount:        body.Amount,
		Currency:      body.Currency,
		Note:          body.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *RefundHandler) Authorize(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	rec, err := h.workflow.Authorize(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *RefundHandler) Decide(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var body decideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, models.NewValidationError("body", "invalid request body"))
		return
	}

	rec, err := h.workflow.Decide(c.Request.Context(), actor, c.Param("id"), body.Decision, body.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "code": "unauthenticated"})
	}
	return actor, ok
}
