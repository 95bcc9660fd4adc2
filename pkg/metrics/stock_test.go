package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStockMetricsExportsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStockMetrics(reg)

	m.ObserveOperation("reserve", OutcomeOK, 10*time.Millisecond)
	m.ObserveOperation("reserve", OutcomeInsufficient, 5*time.Millisecond)
	m.IncRetry("reserve")
	m.IncRetry("reserve")
	m.AddExpired(3)
	m.AddExpired(0)
	m.IncAlert("out_of_stock")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "stockmon_stock_operations_total", "outcome", OutcomeInsufficient); err != nil || got != 1 {
		t.Fatalf("expected insufficient=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockmon_stock_write_conflict_retries_total", "action", "reserve"); err != nil || got != 2 {
		t.Fatalf("expected retries=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockmon_stock_alerts_raised_total", "alert_type", "out_of_stock"); err != nil || got != 1 {
		t.Fatalf("expected alert=1, got %f err=%v", got, err)
	}
	expired := findMetricFamily(mfs, "stockmon_stock_reservations_expired_total")
	if expired == nil || expired.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected expired=3")
	}
	if got, err := fetchHistogramSum(mfs, "stockmon_stock_operation_duration_seconds", "action", "reserve"); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f err=%v", got, err)
	}
}

func TestNilStockMetricsIsNoop(t *testing.T) {
	var m *StockMetrics
	m.ObserveOperation("check", OutcomeOK, time.Millisecond)
	m.IncRetry("check")
	m.AddExpired(1)
	m.IncAlert("low_stock")

	unregistered := NewStockMetrics(nil)
	unregistered.ObserveOperation("check", OutcomeOK, time.Millisecond)
}

func TestBlankLabelsReportAsUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	stock := NewStockMetrics(reg)
	outbox := NewOutboxMetrics(reg)

	stock.IncRetry("")
	outbox.Inc("", OutboxPublished)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "stockmon_stock_write_conflict_retries_total", "action", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown action retry=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockmon_outbox_events_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown event type=1, got %f err=%v", got, err)
	}
}
