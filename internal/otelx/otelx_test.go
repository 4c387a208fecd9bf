package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false, Endpoint: "ignored:4317"})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestInit_Disabled_SpansNotSampled(t *testing.T) {
	if _, err := Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if span.SpanContext().IsSampled() {
		t.Fatal("disabled tracing should never sample")
	}
	if span.IsRecording() {
		t.Fatal("disabled tracing should not record")
	}
}

func TestInit_SetsW3CPropagator(t *testing.T) {
	if _, err := Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	fields := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fields[f] = true
	}
	if !fields["traceparent"] || !fields["baggage"] {
		t.Fatalf("propagator fields = %v", fields)
	}
}

func TestInit_EnabledRequiresEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Options{Enabled: true}); err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestInit_Enabled_ReturnsPromptly(t *testing.T) {
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:   true,
		Endpoint:  "localhost:1",
		Insecure:  true,
		Sample:    1.0,
		Service:   "portal",
		Component: "test",
		Version:   "v0.0.0-test",
	})
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Init took %v", elapsed)
	}
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestServiceName(t *testing.T) {
	tests := []struct {
		o    Options
		want string
	}{
		{Options{Service: "portal", Component: "server"}, "portal.server"},
		{Options{Service: "portal"}, "portal"},
		{Options{Component: "server"}, "server"},
	}
	for _, tt := range tests {
		if got := serviceName(tt.o); got != tt.want {
			t.Errorf("serviceName(%+v) = %q, want %q", tt.o, got, tt.want)
		}
	}
}
