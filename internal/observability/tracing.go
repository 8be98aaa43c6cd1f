package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/autoreplyd/engine/internal/config"
)

// SetupTracing wires an OTLP gRPC exporter when cfg.OTLPEndpoint is set and
// returns a shutdown func; when unset it leaves the global no-op tracer in
// place and returns a no-op shutdown func.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupTracing: %w", err)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(cfg.OTELServiceName),
		semconv.DeploymentEnvironment(cfg.AppEnv),
	))
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupTracing.resource: %w", err)
	}

	// Full sampling outside prod keeps local/staging traces complete; prod
	// samples 10% to bound trace volume against the same OTLP collector.
	samplingRatio := 1.0
	if cfg.IsProd() {
		samplingRatio = 0.1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
