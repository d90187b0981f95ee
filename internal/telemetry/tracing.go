// Package telemetry sets up OpenTelemetry tracing for the proxy.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	exportTimeout      = 10 * time.Second
	reconnectionPeriod = 10 * time.Second
)

// Tracing owns the tracer provider of the process.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates the tracing setup for cfg. If no endpoint is configured,
// the global no-op provider is used and nothing is exported.
// Otherwise the created provider is installed globally, together with
// the W3C trace context and baggage propagators.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Tracing, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	if !cfg.Enabled() {
		log.Debug("tracing disabled, no otlp endpoint configured")
		return &Tracing{tracer: otel.Tracer(name)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	// schemaless, so merging never fails on diverging schema urls
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing enabled", zap.String("endpoint", cfg.Endpoint))

	return &Tracing{
		provider: provider,
		tracer:   provider.Tracer(name),
	}, nil
}

func exporterOptions(cfg Config) []otlptracegrpc.Option {
	opts := make([]otlptracegrpc.Option, 0, 4)

	if strings.Contains(cfg.Endpoint, "://") {
		opts = append(opts, otlptracegrpc.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
	}

	return append(opts,
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithReconnectionPeriod(reconnectionPeriod),
	)
}

// Tracer returns the tracer spans of the proxy are started with.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}

	return t.provider.Shutdown(ctx)
}
