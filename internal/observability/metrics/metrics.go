package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes settlement domain instruments.
type Metrics struct {
	eventsProcessed  metric.Int64Counter
	fragmentsWritten metric.Int64Counter
	flagsRaised      metric.Int64Counter
	incomeRows       metric.Int64Counter
	eventsImported   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "settlement"
	}
	meter := provider.Meter(name)

	eventsProcessed, err := meter.Int64Counter("settlement_events_processed_total")
	if err != nil {
		return nil, err
	}
	fragmentsWritten, err := meter.Int64Counter("settlement_fragments_written_total")
	if err != nil {
		return nil, err
	}
	flagsRaised, err := meter.Int64Counter("settlement_flags_raised_total")
	if err != nil {
		return nil, err
	}
	incomeRows, err := meter.Int64Counter("settlement_income_rows_written_total")
	if err != nil {
		return nil, err
	}
	eventsImported, err := meter.Int64Counter("settlement_events_imported_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsProcessed:  eventsProcessed,
		fragmentsWritten: fragmentsWritten,
		flagsRaised:      flagsRaised,
		incomeRows:       incomeRows,
		eventsImported:   eventsImported,
	}, nil
}

// RecordEventProcessed counts a payment event by outcome (ok, invalid, failed).
func (m *Metrics) RecordEventProcessed(ctx context.Context, sourceType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source_type", strings.TrimSpace(sourceType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.eventsProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFragments counts ledger fragments written for one event.
func (m *Metrics) RecordFragments(ctx context.Context, sourceType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.fragmentsWritten.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordFlag counts review flags by kind and severity.
func (m *Metrics) RecordFlag(ctx context.Context, kind, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("severity", strings.TrimSpace(severity)),
	)
	m.flagsRaised.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordIncomeRows counts author or editor income rows written.
func (m *Metrics) RecordIncomeRows(ctx context.Context, party string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("party", strings.TrimSpace(party)))
	m.incomeRows.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordImport counts imported raw payment events by outcome.
func (m *Metrics) RecordImport(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.eventsImported.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source_type": {},
	"outcome":     {},
	"kind":        {},
	"severity":    {},
	"party":       {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
