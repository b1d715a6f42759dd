package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("bad", nil), http.StatusBadRequest},
		{models.NewSecurityError(models.CodeBlockedAddress, "blocked"), http.StatusForbidden},
		{models.NewSecurityError(models.CodeHighRisk, "risky"), http.StatusForbidden},
		{models.NewRateLimitError(models.LimitedByOrigin, time.Second), http.StatusTooManyRequests},
		{models.NewQueueError(models.CodeDuplicatePending, "dup"), http.StatusConflict},
		{models.NewQueueError(models.CodeQueueFull, "full"), http.StatusServiceUnavailable},
		{models.NewQueueError(models.CodeNotFound, "gone"), http.StatusNotFound},
		{models.NewFulfillmentError(errors.New("x")), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestSetRetryHeaders_RoundsUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	setRetryHeaders(c, models.NewRateLimitError(models.LimitedByIdentity, 1500*time.Millisecond), 10)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	setRetryHeaders(c, models.NewQueueError(models.CodeQueueFull, "full"), 10)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
