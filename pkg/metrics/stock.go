package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels used by StockMetrics.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient"
	OutcomeNotFound     = "not_found"
	OutcomeConflict     = "conflict"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// StockMetrics tracks stock operations, write-conflict retries and alerts.
// A nil *StockMetrics is a valid no-op recorder.
type StockMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	expired    prometheus.Counter
	alerts     *prometheus.CounterVec
}

// NewStockMetrics registers the stock metrics on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	m := &StockMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_operations_total",
			Help:      "Stock monitor operations by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stock_operation_duration_seconds",
			Help:      "Latency of stock monitor operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_write_conflict_retries_total",
			Help:      "Transactions retried after a write conflict.",
		}, []string{"action"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_expired_total",
			Help:      "Reservations moved to expired by the sweeper.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_alerts_raised_total",
			Help:      "Stock alerts created by type.",
		}, []string{"alert_type"}),
	}
	reg.MustRegister(m.operations, m.duration, m.retries, m.expired, m.alerts)
	return m
}

// ObserveOperation records one finished operation.
func (m *StockMetrics) ObserveOperation(action, outcome string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(action)).Observe(duration.Seconds())
}

// IncRetry counts a retried transaction.
func (m *StockMetrics) IncRetry(action string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(action)).Inc()
}

// AddExpired counts reservations expired by a sweep.
func (m *StockMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

// IncAlert counts a newly raised alert.
func (m *StockMetrics) IncAlert(alertType string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(alertType)).Inc()
}
