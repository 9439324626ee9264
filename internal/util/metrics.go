package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_started_total",
		Help: "Total number of checkout attempts started",
	})

	CheckoutsSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_succeeded_total",
		Help: "Total number of checkouts committed",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"kind"})

	CheckoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "End-to-end latency of checkout attempts",
		Buckets: prometheus.DefBuckets,
	})

	ReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_total",
		Help: "Total number of successful stock reservations",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	ReservationsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_released_total",
		Help: "Total number of reservations released by compensation",
	})

	ReservationsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_swept_total",
		Help: "Total number of expired reservations released by the sweeper",
	})

	ReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment authorization attempts",
	})

	PaymentApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_approved_total",
		Help: "Total number of approved payment authorizations",
	})

	PaymentDeclinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_declined_total",
		Help: "Total number of declined payment authorizations",
	})

	PaymentTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_timeouts_total",
		Help: "Total number of timed-out payment authorizations",
	})

	PaymentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_latency_seconds",
		Help:    "Latency of payment authorization calls",
		Buckets: prometheus.DefBuckets,
	})

	ReconciliationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliations_required_total",
		Help: "Total number of approved payments flagged for reconciliation",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
