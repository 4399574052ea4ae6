// Package trace wires the swarm engine into OpenTelemetry. Tracing is
// off by default (a noop tracer); calling Start installs an OTLP
// exporter and swaps the global tracer the engine spans against.
package trace

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentName = "github.com/craftwell/swarmkit"
	serviceName    = "swarm"

	// ProtocolGRPC selects the OTLP gRPC exporter (default).
	ProtocolGRPC = "grpc"
	// ProtocolHTTP selects the OTLP HTTP exporter.
	ProtocolHTTP = "http"
)

// Tracer is the global tracer the engine creates spans on. It stays a
// noop until Start succeeds.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer("")

// Option configures Start.
type Option func(*options)

type options struct {
	endpoint    string
	protocol    string
	serviceName string
}

// WithEndpoint sets the collector endpoint as host:port. When unset,
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT and OTEL_EXPORTER_OTLP_ENDPOINT
// are consulted before the protocol default.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithProtocol selects the export protocol, ProtocolGRPC or
// ProtocolHTTP.
func WithProtocol(protocol string) Option {
	return func(o *options) { o.protocol = protocol }
}

// WithServiceName overrides the service name reported on spans.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// Start installs an OTLP trace exporter and promotes the global Tracer.
// The returned clean function flushes and shuts the provider down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{protocol: ProtocolGRPC, serviceName: serviceName}
	for _, opt := range opts {
		opt(o)
	}
	if o.endpoint == "" {
		o.endpoint = defaultEndpoint(o.protocol)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(o.serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	Tracer = otel.Tracer(instrumentName)

	return func() error {
		if err := provider.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, o *options) (sdktrace.SpanExporter, error) {
	switch o.protocol {
	case ProtocolHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(o.endpoint),
			otlptracehttp.WithInsecure(),
		)
	default:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(o.endpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
}

func defaultEndpoint(protocol string) string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if protocol == ProtocolHTTP {
		return "localhost:4318"
	}
	return "localhost:4317"
}
