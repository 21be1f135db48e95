package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/service"
)

// QueryHandler serves approval queues and dashboards.
type QueryHandler struct {
	queries *service.QueryService
}

func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

func (h *QueryHandler) GetRefund(c *gin.Context) {
	rec, err := h.queries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *QueryHandler) ListRefunds(c *gin.Context) {
	number, err := intQuery(c, "page")
	if err != nil {
		writeError(c, err)
		return
	}
	size, err := intQuery(c, "page_size")
	if err != nil {
		writeError(c, err)
		return
	}

	records, page, err := h.queries.List(c.Request.Context(), models.RefundStatus(c.Query("status")), models.Page{Number: number, Size: size})
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []models.RefundRequest{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      records,
		"page":      page.Number,
		"page_size": page.Size,
	})
}

func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.queries.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": stats})
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, models.NewValidationError(name, "must be a positive integer")
	}
	return n, nil
}
