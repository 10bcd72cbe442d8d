package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records the order engine's key counters: placements by
// outcome, stock adjustments by movement type, rating recomputes and store
// transaction retries. A nil registerer yields a no-op instance so callers
// never need to guard.
type EngineMetrics struct {
	orderDuration *prometheus.HistogramVec
	orders        *prometheus.CounterVec
	adjustments   *prometheus.CounterVec
	recomputes    *prometheus.CounterVec
	txnRetries    prometheus.Counter
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	orderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_placement_duration_seconds",
		Help:    "Duration of order placements in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_total",
		Help: "Order placements by outcome.",
	}, []string{"outcome"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_total",
		Help: "Manual stock adjustments by movement type.",
	}, []string{"type"})
	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_recomputes_total",
		Help: "Rating recomputations by outcome.",
	}, []string{"outcome"})
	txnRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_txn_retries_total",
		Help: "Store transactions retried after a conflict.",
	})
	reg.MustRegister(orderDuration, orders, adjustments, recomputes, txnRetries)
	return &EngineMetrics{
		orderDuration: orderDuration,
		orders:        orders,
		adjustments:   adjustments,
		recomputes:    recomputes,
		txnRetries:    txnRetries,
	}
}

// ObserveOrder records one placement attempt with its duration.
func (e *EngineMetrics) ObserveOrder(outcome string, duration time.Duration) {
	if e == nil || e.orders == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	e.orders.WithLabelValues(outcome).Inc()
	e.orderDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncAdjustment increments the adjustment counter for a movement type.
func (e *EngineMetrics) IncAdjustment(movementType string) {
	if e == nil || e.adjustments == nil {
		return
	}
	e.adjustments.WithLabelValues(normalizeLabel(movementType)).Inc()
}

// IncRecompute increments the recompute counter for the given outcome.
func (e *EngineMetrics) IncRecompute(outcome string) {
	if e == nil || e.recomputes == nil {
		return
	}
	e.recomputes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTxnRetry counts one retried store transaction.
func (e *EngineMetrics) IncTxnRetry() {
	if e == nil || e.txnRetries == nil {
		return
	}
	e.txnRetries.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
