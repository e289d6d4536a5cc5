package observability

import (
	"context"
	"testing"
	"time"
)

func TestNewMetricsCollectorDisabled(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetricsCollector: %v", err)
	}
	if collector == nil {
		t.Fatal("expected a non-nil no-op collector")
	}
	if err := collector.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on disabled collector: %v", err)
	}
}

func TestNewMetricsCollectorEnabledWithoutScrapeServer(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: true, PrometheusPort: 0})
	if err != nil {
		t.Fatalf("NewMetricsCollector: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = collector.Shutdown(ctx)
	}()

	ctx := context.Background()
	collector.RecordExecution(ctx, "reviewer", "completed", 250*time.Millisecond)
	collector.RecordExecution(ctx, "reviewer", "failed", 10*time.Millisecond)
	collector.IncrementActiveDrivers(ctx)
	collector.IncrementActiveDrivers(ctx)
	collector.DecrementActiveDrivers(ctx)
	collector.RecordRoutingIteration(ctx, "task-1")
	collector.SetPoolSlotsInUse(ctx, 1)
	collector.SetPoolSlotsInUse(ctx, -1)
	// No assertions beyond "does not panic" — matches the teacher's own
	// metrics smoke tests, which treat a clean Record call as sufficient.
}

func TestDefaultConfigs(t *testing.T) {
	tr := DefaultTracingConfig()
	if tr.Enabled {
		t.Fatal("expected tracing disabled by default")
	}
	if tr.Exporter != "jaeger" {
		t.Fatalf("expected jaeger default exporter, got %s", tr.Exporter)
	}
	if tr.SampleRate != 1.0 {
		t.Fatalf("expected full sampling by default, got %f", tr.SampleRate)
	}

	m := DefaultMetricsConfig()
	if !m.Enabled {
		t.Fatal("expected metrics enabled by default")
	}
	if m.PrometheusPort != 9090 {
		t.Fatalf("expected default prometheus port 9090, got %d", m.PrometheusPort)
	}
}
