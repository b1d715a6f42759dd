package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mint_admission_decisions_total",
			Help: "Admission decisions by outcome and error code",
		},
		[]string{"outcome", "code"},
	)

	RiskScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mint_admission_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 12),
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mint_queue_items",
			Help: "Queue items by status",
		},
		[]string{"status"},
	)

	FulfillmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mint_fulfillments_total",
			Help: "Fulfillment attempts by result",
		},
		[]string{"result"},
	)

	FulfillmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mint_fulfillment_duration_seconds",
			Help:    "Time spent waiting on the fulfillment collaborator",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mint_queue_events_dropped_total",
			Help: "Queue events dropped because the dispatch buffer was full",
		},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mint_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AdmissionDecisions,
			RiskScores,
			QueueDepth,
			FulfillmentsTotal,
			FulfillmentDuration,
			EventsDropped,
			HTTPRequestDuration,
		)
	})
}
