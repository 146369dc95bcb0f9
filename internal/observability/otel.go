// Package observability installs the OpenTelemetry trace and metric providers.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const serviceName = "window-log-limiter"

// Options describes where telemetry goes and how the limiter is deployed.
type Options struct {
	Writer         io.Writer
	ExportInterval time.Duration
	// SampleRatio applies to root spans; child spans follow their parent.
	SampleRatio float64
	// StoreType and Serialization are attached to every span and metric.
	StoreType     string
	Serialization string
}

// Providers owns the installed providers.
type Providers struct {
	tracer *trace.TracerProvider
	meter  *metric.MeterProvider
}

// Init installs global providers that export to opts.Writer.
func Init(ctx context.Context, opts Options) (*Providers, error) {
	if opts.Writer == nil {
		return nil, errors.New("telemetry writer is required")
	}
	if opts.ExportInterval <= 0 {
		return nil, fmt.Errorf("telemetry export interval must be positive, got %s", opts.ExportInterval)
	}
	if opts.SampleRatio < 0 || opts.SampleRatio > 1 {
		return nil, fmt.Errorf("telemetry sample ratio must be within [0, 1], got %v", opts.SampleRatio)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("ratelimiter.store", opts.StoreType),
			attribute.String("ratelimiter.serialization", opts.Serialization),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.Writer))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Writer))
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	p := &Providers{
		tracer: trace.NewTracerProvider(
			trace.WithBatcher(traceExporter),
			trace.WithResource(res),
			trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(opts.SampleRatio))),
		),
		meter: metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(opts.ExportInterval))),
			metric.WithResource(res),
		),
	}

	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// Shutdown flushes pending spans before the final metric collection, then
// stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	flushErr := p.tracer.ForceFlush(ctx)
	return errors.Join(flushErr, p.tracer.Shutdown(ctx), p.meter.Shutdown(ctx))
}
