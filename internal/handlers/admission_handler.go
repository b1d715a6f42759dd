package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/service"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

type AdmissionHandler struct {
	admission *service.AdmissionController
	limit     int
}

func NewAdmissionHandler(admission *service.AdmissionController, limit int) *AdmissionHandler {
	return &AdmissionHandler{admission: admission, limit: limit}
}

func (h *AdmissionHandler) CheckPayment(c *gin.Context) {
	var req models.AdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Warn("Error decoding admission request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.AdmissionResult{
			Flags:     []models.RiskFlag{},
			ErrorCode: models.CodeInvalidRequest,
		})
		return
	}

	attempt, err := h.admission.Admit(c.Request.Context(), req, c.ClientIP(), c.Request.UserAgent())
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", h.limit))
	if err != nil {
		if _, ok := models.AsError(err); !ok {
			writeError(c, err)
			return
		}
		setRetryHeaders(c, err, h.limit)
		c.JSON(statusFor(err), service.ResultFor(attempt, err))
		return
	}

	c.JSON(http.StatusOK, service.ResultFor(attempt, nil))
}
