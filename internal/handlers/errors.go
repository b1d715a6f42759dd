package handlers

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

// statusFor maps a structured error to its HTTP status. Unstructured errors are
// internal failures.
func statusFor(err error) int {
	e, ok := models.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindSecurity:
		return http.StatusForbidden
	case models.KindRateLimit:
		return http.StatusTooManyRequests
	case models.KindQueue:
		switch e.Code {
		case models.CodeDuplicatePending:
			return http.StatusConflict
		case models.CodeQueueFull:
			return http.StatusServiceUnavailable
		case models.CodeNotFound:
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case models.KindFulfillment:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// setRetryHeaders adds Retry-After, in whole seconds rounded up, for rate limited errors.
func setRetryHeaders(c *gin.Context, err error, limit int) {
	e, ok := models.AsError(err)
	if !ok || e.Kind != models.KindRateLimit {
		return
	}
	secs := int64(math.Ceil(e.RetryAfter.Seconds()))
	c.Header("Retry-After", fmt.Sprintf("%d", secs))
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", secs))
}

func writeError(c *gin.Context, err error) {
	e, ok := models.AsError(err)
	if !ok {
		telemetry.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{
		"error":      e.Message,
		"error_code": e.Code,
	}
	if e.Code == models.CodeDuplicatePending {
		body["existing_position"] = e.ExistingPosition
	}
	if e.RetryAfter > 0 {
		body["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	c.JSON(statusFor(err), body)
}
