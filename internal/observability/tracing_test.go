package observability

import (
	"context"
	"testing"
)

func TestNewTracerProviderDisabledIsNoop(t *testing.T) {
	shutdown, err := NewTracerProvider(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewTracerProviderUnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), TracingConfig{
		Enabled:  true,
		Exporter: "not-a-real-exporter",
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized exporter")
	}
}
