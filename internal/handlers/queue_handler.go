package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/service"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

// SubmitRequest enqueues work for identity. When Payment is present it is run
// through full admission and must belong to the same identity; otherwise identity is
// validated and rate limited.
type SubmitRequest struct {
	Identity string                   `json:"identity" binding:"required"`
	Payload  models.Payload           `json:"payload"`
	Payment  *models.AdmissionRequest `json:"payment,omitempty"`
}

type QueueHandler struct {
	queue     *service.FulfillmentQueue
	admission *service.AdmissionController
	archive   interfaces.QueueArchive
	limit     int
}

// NewQueueHandler wires the queue endpoints. archive may be nil, in which case
// status lookups only see in-memory items.
func NewQueueHandler(queue *service.FulfillmentQueue, admission *service.AdmissionController, archive interfaces.QueueArchive, limit int) *QueueHandler {
	return &QueueHandler{
		queue:     queue,
		admission: admission,
		archive:   archive,
		limit:     limit,
	}
}

func (h *QueueHandler) Submit(c *gin.Context) {
	ctx, span := telemetry.Tracer.Start(c.Request.Context(), "queue.Submit")
	defer span.End()

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Logger.Warn("Error decoding submit request", zap.Error(err))
		writeError(c, models.NewValidationError("invalid request body", err))
		return
	}

	var identity string
	if req.Payment == nil {
		throttled, err := h.admission.Throttle(ctx, req.Identity, c.ClientIP())
		if err != nil {
			setRetryHeaders(c, err, h.limit)
			writeError(c, err)
			return
		}
		identity = throttled
	} else {
		if !strings.EqualFold(strings.TrimSpace(req.Payment.Identity), strings.TrimSpace(req.Identity)) {
			writeError(c, models.NewValidationError("payment identity does not match submitter", nil))
			return
		}
		attempt, err := h.admission.Admit(ctx, *req.Payment, c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			if _, ok := models.AsError(err); !ok {
				writeError(c, err)
				return
			}
			setRetryHeaders(c, err, h.limit)
			c.JSON(statusFor(err), service.ResultFor(attempt, err))
			return
		}
		identity = attempt.Identity
	}

	receipt, err := h.queue.Submit(identity, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// pathIdentity returns the identity URL parameter in the form items are stored under.
func pathIdentity(c *gin.Context) string {
	raw := c.Param("identity")
	if identity, ok := service.NormalizeIdentity(raw); ok {
		return identity
	}
	return raw
}

// archivedPosition reports an archived item. Only terminal states survive a restart;
// a queued or processing row belongs to a queue that no longer exists.
func archivedPosition(item *models.QueueItem) models.QueuePosition {
	pos := models.QueuePosition{
		Found:  true,
		ItemID: item.ID,
		Status: item.Status,
		Result: item.Result,
		Error:  item.Error,
	}
	if !item.Status.Terminal() {
		pos.Status = models.StatusFailed
		pos.Result = nil
		pos.Error = "request was interrupted before completion"
	}
	return pos
}

func (h *QueueHandler) GetStatus(c *gin.Context) {
	identity := pathIdentity(c)

	pos := h.queue.Status(identity)
	if pos.Found {
		c.JSON(http.StatusOK, pos)
		return
	}

	if h.archive != nil {
		item, err := h.archive.LatestByIdentity(c.Request.Context(), identity)
		if err != nil {
			telemetry.Logger.Error("Failed to read queue archive",
				zap.String("identity", identity),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch queue status"})
			return
		}
		if item != nil {
			c.JSON(http.StatusOK, archivedPosition(item))
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{
		"found":      false,
		"error_code": models.CodeNotFound,
	})
}

func (h *QueueHandler) Cancel(c *gin.Context) {
	identity := pathIdentity(c)
	c.JSON(http.StatusOK, gin.H{"cancelled": h.queue.Cancel(identity)})
}

func (h *QueueHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Stats())
}

func (h *QueueHandler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Snapshot())
}
