package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/refund-authorization/internal/models"
	"github.com/akylbek/payment-system/refund-authorization/internal/telemetry"
)

// writeError maps workflow errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	kind := models.Kind(err)
	body := gin.H{"error": err.Error(), "code": kind}

	var status int
	switch kind {
	case "validation":
		status = http.StatusBadRequest
	case "forbidden":
		status = http.StatusForbidden
	case "not_found":
		status = http.StatusNotFound
	case "duplicate_request":
		status = http.StatusConflict
		var dup *models.DuplicateRequestError
		if errors.As(err, &dup) && dup.ExistingID != "" {
			body["existing_id"] = dup.ExistingID
		}
	case "invalid_state":
		status = http.StatusConflict
	case "conflict":
		status = http.StatusConflict
		body["error"] = models.ErrConflict.Error()
	default:
		telemetry.Logger.Error("Refund request failed",
			zap.String("path", c.FullPath()),
			zap.String("refund_id", c.Param("id")),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}
