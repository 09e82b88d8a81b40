package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Ledger
	LedgerEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Completed ledger entries",
		},
		[]string{"kind"}, // top_up|withdrawal|order_payment|security_deposit|security_deposit_refund
	)
	LedgerRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_rejected_total",
			Help: "Ledger operations rejected before any write",
		},
		[]string{"reason"},
	)

	// Orders
	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by target status",
		},
		[]string{"status"},
	)
	OrdersAutoCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_auto_cancelled_total",
			Help: "Pending orders cancelled by the stale-order sweeper",
		},
	)

	// Notifications and realtime
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Open websocket connections",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
	WorkerJobsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_jobs_dropped_total",
			Help: "Jobs rejected because the worker queue was full",
		},
	)
)

// Handler serves /metrics.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		LedgerEntriesTotal,
		LedgerRejectedTotal,
		OrderTransitionsTotal,
		OrdersAutoCancelled,
		NotificationsTotal,
		RealtimeConnections,
		WorkerQueueDepth,
		WorkerJobsDropped,
	)
}
