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
	datasetsIngested metric.Int64Counter
	recordsIngested  metric.Int64Counter
	uploadsRejected  metric.Int64Counter
	datasetsEvicted  metric.Int64Counter
	reportsRendered  metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the dataset pipeline instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "equiplytics"
	}
	meter := provider.Meter(name)

	datasetsIngested, err := meter.Int64Counter("equiplytics_datasets_ingested_total")
	if err != nil {
		return nil, err
	}
	recordsIngested, err := meter.Int64Counter("equiplytics_records_ingested_total")
	if err != nil {
		return nil, err
	}
	uploadsRejected, err := meter.Int64Counter("equiplytics_uploads_rejected_total")
	if err != nil {
		return nil, err
	}
	datasetsEvicted, err := meter.Int64Counter("equiplytics_datasets_evicted_total")
	if err != nil {
		return nil, err
	}
	reportsRendered, err := meter.Int64Counter("equiplytics_reports_rendered_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		datasetsIngested: datasetsIngested,
		recordsIngested:  recordsIngested,
		uploadsRejected:  uploadsRejected,
		datasetsEvicted:  datasetsEvicted,
		reportsRendered:  reportsRendered,
	}, nil
}

// RecordIngest counts one committed dataset and its rows.
func (m *Metrics) RecordIngest(ctx context.Context, rows int) {
	if m == nil {
		return
	}
	m.datasetsIngested.Add(ctx, 1)
	m.recordsIngested.Add(ctx, int64(rows))
}

// RecordRejected counts an upload refused before anything was stored.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.uploadsRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordEvictions(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.datasetsEvicted.Add(ctx, int64(n))
}

func (m *Metrics) RecordReport(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.reportsRendered.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"reason":  {},
	"outcome": {},
	"stage":   {},
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
