// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sitesearch/internal/config"
	"github.com/kailas-cloud/sitesearch/internal/version"
)

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// Setup exports spans over OTLP/gRPC when cfg.Endpoint is set. Otherwise the
// global no-op provider stays in place.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *zap.Logger) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := NewProvider(cfg, sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// NewProvider builds a tracer provider with the service resource and sampler
// from cfg. Extra options (span processors) are appended.
func NewProvider(cfg config.TracingConfig, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", version.Version),
	)
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	return sdktrace.NewTracerProvider(append(base, opts...)...)
}
