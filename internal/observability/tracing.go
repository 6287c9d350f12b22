package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/zero-day-ai/cypherguard/internal/types"
	"github.com/zero-day-ai/cypherguard/pkg/version"
)

const (
	defaultBatchTimeout = 5 * time.Second
	defaultServiceName  = "cypherguard"

	// InstrumentationName names the tracer and meter used across cypherguard.
	InstrumentationName = "github.com/zero-day-ai/cypherguard"
)

// TracingOption is a functional option for configuring tracing initialization.
type TracingOption func(*tracingOptions)

type tracingOptions struct {
	sampler      sdktrace.Sampler
	resource     *resource.Resource
	batchTimeout time.Duration
	exporter     sdktrace.SpanExporter
}

// WithSampler sets a custom sampler for the tracer provider.
func WithSampler(sampler sdktrace.Sampler) TracingOption {
	return func(o *tracingOptions) {
		o.sampler = sampler
	}
}

// WithResource sets a custom resource for the tracer provider.
func WithResource(res *resource.Resource) TracingOption {
	return func(o *tracingOptions) {
		o.resource = res
	}
}

// WithBatchTimeout sets the maximum time between batch exports.
func WithBatchTimeout(timeout time.Duration) TracingOption {
	return func(o *tracingOptions) {
		o.batchTimeout = timeout
	}
}

// WithSpanExporter replaces the OTLP exporter, typically with an in-memory
// exporter in tests.
func WithSpanExporter(exporter sdktrace.SpanExporter) TracingOption {
	return func(o *tracingOptions) {
		o.exporter = exporter
	}
}

// InitTracing builds the tracer provider described by cfg and installs it as
// the global provider. Supported providers are "otlp" and "noop". A disabled
// config yields a provider without an exporter, which records nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, opts ...TracingOption) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED, "invalid tracing configuration", err)
	}

	o := tracingOptions{batchTimeout: defaultBatchTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sampler == nil {
		o.sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	if o.exporter == nil {
		if strings.EqualFold(cfg.Provider, "noop") {
			return sdktrace.NewTracerProvider(), nil
		}
		exp, err := newOTLPExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.exporter = exp
	}

	if o.resource == nil {
		res, err := serviceResource(ctx, cfg.ServiceName)
		if err != nil {
			return nil, err
		}
		o.resource = res
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(o.exporter, sdktrace.WithBatchTimeout(o.batchTimeout)),
		sdktrace.WithSampler(o.sampler),
		sdktrace.WithResource(o.resource),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func serviceResource(ctx context.Context, name string) (*resource.Resource, error) {
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version.Version),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED, "failed to create resource", err)
	}
	return res, nil
}

// newOTLPExporter dials the collector at cfg.Endpoint. A client certificate
// takes precedence over insecure mode; otherwise system TLS is used.
func newOTLPExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if !strings.EqualFold(cfg.Provider, "otlp") {
		return nil, types.NewError(types.TELEMETRY_EXPORTER_FAILED,
			fmt.Sprintf("unsupported tracing provider: %s", cfg.Provider))
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	switch {
	case cfg.TLSCertFile != "" && cfg.TLSKeyFile != "":
		creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertFile, "")
		if err != nil {
			return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED, "failed to load TLS credentials", err)
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	case cfg.InsecureMode:
		opts = append(opts, otlptracegrpc.WithInsecure())
	default:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(nil)))
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, types.WrapError(types.TELEMETRY_EXPORTER_FAILED,
			fmt.Sprintf("failed to connect to exporter at %s", cfg.Endpoint), err)
	}
	return exp, nil
}

// ShutdownTracing flushes pending spans and shuts the provider down. The
// context timeout bounds how long in-flight exports may take.
func ShutdownTracing(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return types.WrapError(types.TELEMETRY_SHUTDOWN_FAILED, "failed to shutdown tracer provider", err)
	}

	return nil
}

// Tracer returns the cypherguard tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
