package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/mint-gateway/internal/handlers"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

const ServiceName = "mint-gateway"

// Liveness is satisfied by the queue worker.
type Liveness interface {
	Running() bool
}

func NewRouter(admission *handlers.AdmissionHandler, queue *handlers.QueueHandler, worker Liveness) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"service":        ServiceName,
			"worker_running": worker.Running(),
		})
	})

	r.POST("/admission/check", admission.CheckPayment)

	q := r.Group("/queue")
	q.POST("", queue.Submit)
	q.GET("/stats", queue.GetStats)
	q.GET("/snapshot", queue.GetSnapshot)
	q.GET("/:identity", queue.GetStatus)
	q.DELETE("/:identity", queue.Cancel)

	return r
}
