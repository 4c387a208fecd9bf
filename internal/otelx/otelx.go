// Package otelx installs the process-wide OpenTelemetry tracer provider.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/plushcare/portal/internal/xerrors"
)

type Options struct {
	Enabled bool
	// Endpoint is the host:port of a local OTLP gRPC collector
	Endpoint  string
	Insecure  bool
	Sample    float64
	Service   string
	Component string
	Version   string
}

// Shutdown flushes and stops the provider
type Shutdown func(context.Context) error

// Init sets the global tracer provider and W3C propagators.
// Disabled tracing still installs an SDK provider so spans carry valid IDs for
// log correlation, they are just never exported.
func Init(ctx context.Context, o Options) (Shutdown, error) {
	setPropagators()
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample())))
		return func(context.Context) error { return nil }, nil
	}
	if o.Endpoint == "" {
		return nil, xerrors.New("otlp endpoint is required when tracing is enabled")
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	// the collector is local, a short dial bound keeps startup from hanging
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create otlp exporter for %s", o.Endpoint)
	}

	// partial resources are still usable, detector errors only drop attributes
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(o)),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func serviceName(o Options) string {
	switch {
	case o.Service == "":
		return o.Component
	case o.Component == "":
		return o.Service
	}
	return o.Service + "." + o.Component
}

func setPropagators() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}
