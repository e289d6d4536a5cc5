// Package observability bootstraps the optional tracing and metrics export
// spec §9 allows for but does not mandate: an otel trace provider backed by
// one of OTLP/Jaeger/Zipkin, and a Prometheus-scraped metrics collector for
// pool/executor/routing counters. Both are no-ops when disabled in
// configuration, so the rest of the server never has to branch on whether
// observability is turned on.
//
// Grounded on the teacher's internal/observability and
// internal/infra/observability packages (only their _test.go files survive
// in the retrieval pack, which is what fixes the config/MetricsCollector
// shape reproduced here): separate TracingConfig and MetricsConfig with
// defaults (there is no combined Config type), and a MetricsCollector with
// Record*/Increment*/Decrement* methods plus a context-aware Shutdown.
package observability

// TracingConfig controls the otel trace provider.
type TracingConfig struct {
	Enabled        bool
	Exporter       string // "otlp" | "jaeger" | "zipkin"
	Endpoint       string
	SampleRate     float64
	ServiceName    string
	ServiceVersion string
}

// MetricsConfig controls the Prometheus-scraped metrics collector.
type MetricsConfig struct {
	Enabled        bool
	PrometheusPort int
}

// DefaultTracingConfig mirrors the teacher's documented defaults: tracing
// off by default, jaeger when enabled, full sampling.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		Exporter:       "jaeger",
		SampleRate:     1.0,
		ServiceName:    "taskrouter",
		ServiceVersion: "dev",
	}
}

// DefaultMetricsConfig mirrors the teacher's documented defaults: metrics on
// by default, scraped on :9090.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, PrometheusPort: 9090}
}
