package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/kongfuworld/settlement/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the tracer provider.
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Environment      string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// NewProvider configures the OTLP exporter and registers the tracer provider.
// When tracing is disabled the provider has no exporter and samples nothing.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(runSpanProcessor{}),
	}
	if cfg.Enabled {
		exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
		)
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down tracer provider")
				}
				return tp.Shutdown(ctx)
			},
		})
	}

	if log != nil && cfg.Enabled {
		log.Info("tracing initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return tp, nil
}

func newExporter(protocol, endpoint string) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// runSpanProcessor stamps every span with the settlement run it belongs to.
type runSpanProcessor struct{}

func (runSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if runID := obscontext.RunIDFromContext(ctx); runID != "" {
		s.SetAttributes(attribute.String("settlement.run_id", runID))
	}
	if month := obscontext.MonthFromContext(ctx); month != "" {
		s.SetAttributes(attribute.String("settlement.month", month))
	}
}

func (runSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (runSpanProcessor) Shutdown(context.Context) error { return nil }

func (runSpanProcessor) ForceFlush(context.Context) error { return nil }
