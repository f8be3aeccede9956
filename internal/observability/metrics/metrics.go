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

// Metrics exposes application-level instruments.
type Metrics struct {
	entriesPosted    metric.Int64Counter
	postingConflicts metric.Int64Counter
	postingRetries   metric.Int64Counter
	postingDuration  metric.Float64Histogram
	taxCalculations  metric.Int64Counter
	httpRequests     metric.Int64Counter
	httpDuration     metric.Float64Histogram
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
		name = "bookkeeping"
	}
	meter := provider.Meter(name)

	entriesPosted, err := meter.Int64Counter("bookkeeping_journal_entries_posted_total")
	if err != nil {
		return nil, err
	}
	postingConflicts, err := meter.Int64Counter("bookkeeping_posting_conflicts_total")
	if err != nil {
		return nil, err
	}
	postingRetries, err := meter.Int64Counter("bookkeeping_posting_retries_total")
	if err != nil {
		return nil, err
	}
	postingDuration, err := meter.Float64Histogram("bookkeeping_posting_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	taxCalculations, err := meter.Int64Counter("bookkeeping_tax_calculations_total")
	if err != nil {
		return nil, err
	}

	httpRequests, err := meter.Int64Counter("bookkeeping_http_requests_total")
	if err != nil {
		return nil, err
	}
	httpDuration, err := meter.Float64Histogram("bookkeeping_http_request_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		entriesPosted:    entriesPosted,
		postingConflicts: postingConflicts,
		postingRetries:   postingRetries,
		postingDuration:  postingDuration,
		taxCalculations:  taxCalculations,
		httpRequests:     httpRequests,
		httpDuration:     httpDuration,
	}, nil
}

// NewNoop returns instruments backed by a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordEntryPosted counts a journal entry reaching posted state.
func (m *Metrics) RecordEntryPosted(ctx context.Context, entryType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entry_type", strings.TrimSpace(entryType)))
	m.entriesPosted.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.postingDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPostingConflict counts an optimistic concurrency failure.
func (m *Metrics) RecordPostingConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.postingConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPostingRetry counts a retried posting attempt.
func (m *Metrics) RecordPostingRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.postingRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTaxCalculation counts a tax computation by mode.
func (m *Metrics) RecordTaxCalculation(ctx context.Context, mode string, exempt bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.Bool("exempt", exempt),
	)
	m.taxCalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"entry_type":  {},
	"operation":   {},
	"mode":        {},
	"exempt":      {},
	"route":       {},
	"status_code": {},
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
