package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CounterMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classbook_occupancy_mutations_total",
		Help: "Total number of committed-or-attempted occupancy writes by audit action",
	}, []string{"action"})

	CapacityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classbook_class_full_rejections_total",
		Help: "Total number of seat increments rejected because the offering was full",
	})

	BookingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classbook_booking_operations_total",
		Help: "Booking ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	DriftCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classbook_drift_corrections_total",
		Help: "Total number of occupancy counters overwritten by reconciliation",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classbook_reconcile_sweep_duration_seconds",
		Help:    "Duration of full reconciliation sweeps",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classbook_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classbook_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
