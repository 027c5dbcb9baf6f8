// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Quote outcomes.
const (
	OutcomeSigned      = "signed"
	OutcomeIgnored     = "ignored"
	OutcomeRejected    = "rejected"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Fill outcomes.
const (
	FillSettled   = "settled"
	FillFailed    = "failed"
	FillIgnored   = "ignored"
	FillDuplicate = "duplicate"
	FillLocked    = "locked"
)

var (
	// ============================================
	// Quote pipeline
	// ============================================
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_quote_requests_total",
			Help: "Quote requests handled, by outcome",
		},
		[]string{"outcome"},
	)

	QuoteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rfq_quote_latency_seconds",
		Help:    "Time from quote request to placed order",
		Buckets: prometheus.DefBuckets,
	})

	OrdersSigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfq_orders_signed_total",
		Help: "Orders signed and placed on the backend",
	})

	OrdersCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_orders_cancelled_total",
			Help: "Timed cancellations, by result",
		},
		[]string{"result"},
	)

	// ============================================
	// Settlement
	// ============================================
	Fills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_fills_total",
			Help: "Fill notifications handled, by outcome",
		},
		[]string{"outcome"},
	)

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rfq_settlement_latency_seconds",
		Help:    "Time spent submitting and confirming a settlement",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	PendingExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rfq_pending_executions",
		Help: "Records currently held in the pending-execution ledger",
	})

	// ============================================
	// Feed connection
	// ============================================
	FeedState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rfq_feed_state",
		Help: "Feed connection state (0=disconnected, 1=connecting, 2=open, 3=closed)",
	})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfq_feed_reconnects_total",
		Help: "Feed reconnection attempts",
	})

	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_feed_events_total",
			Help: "Inbound feed events dispatched, by type",
		},
		[]string{"type"},
	)

	FeedDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_feed_dropped_total",
			Help: "Feed events dropped because a subscriber was full, by type",
		},
		[]string{"type"},
	)

	// ============================================
	// Sinks
	// ============================================
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_lifecycle_events_published_total",
			Help: "Lifecycle events published, by backend and result",
		},
		[]string{"backend", "result"},
	)

	SettlementsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rfq_settlements_archived_total",
		Help: "Settlement rows exported to object storage",
	})
)
