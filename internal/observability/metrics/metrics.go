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
	sessionsStarted    metric.Int64Counter
	admissionsRejected metric.Int64Counter
	sessionsStopped    metric.Int64Counter
	billingRecords     metric.Int64Counter
	billedAmount       metric.Float64Counter
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
		name = "slotmeter"
	}
	meter := provider.Meter(name)

	sessionsStarted, err := meter.Int64Counter("slotmeter_sessions_started_total")
	if err != nil {
		return nil, err
	}
	admissionsRejected, err := meter.Int64Counter("slotmeter_admissions_rejected_total")
	if err != nil {
		return nil, err
	}
	sessionsStopped, err := meter.Int64Counter("slotmeter_sessions_stopped_total")
	if err != nil {
		return nil, err
	}
	billingRecords, err := meter.Int64Counter("slotmeter_billing_records_total")
	if err != nil {
		return nil, err
	}
	billedAmount, err := meter.Float64Counter("slotmeter_billed_amount_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessionsStarted:    sessionsStarted,
		admissionsRejected: admissionsRejected,
		sessionsStopped:    sessionsStopped,
		billingRecords:     billingRecords,
		billedAmount:       billedAmount,
	}, nil
}

// RecordSessionStarted counts an admitted session.
func (m *Metrics) RecordSessionStarted(ctx context.Context, resourceName string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", strings.TrimSpace(resourceName)))
	m.sessionsStarted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAdmissionRejected counts a refused start request.
func (m *Metrics) RecordAdmissionRejected(ctx context.Context, resourceName, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("resource", strings.TrimSpace(resourceName)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.admissionsRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSessionStopped counts a closed session.
func (m *Metrics) RecordSessionStopped(ctx context.Context, resourceName string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", strings.TrimSpace(resourceName)))
	m.sessionsStopped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBillingRecord counts a persisted billing record and its amount.
func (m *Metrics) RecordBillingRecord(ctx context.Context, resourceName string, amount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", strings.TrimSpace(resourceName)))
	m.billingRecords.Add(ctx, 1, metric.WithAttributes(attrs...))
	if amount > 0 {
		m.billedAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
	}
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
	"resource":    {},
	"reason":      {},
	"endpoint":    {},
	"method":      {},
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
