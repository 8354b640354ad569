package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mintel/lpipe/logger"
)

// MeterConfig holds the OTLP metric export settings of one service.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Insecure       bool
	// Interval between periodic exports.
	Interval time.Duration
}

// InitMeter installs a periodic OTLP meter provider as the global provider.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("Meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded while processing batches.
type Metrics struct {
	invocations      metric.Int64Counter
	records          metric.Int64Counter
	recordDuration   metric.Float64Histogram
	handlerDuration  metric.Float64Histogram
	puts             metric.Int64Counter
	failures         metric.Int64Counter
	invocationActive metric.Int64UpDownCounter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	invocations, err := meter.Int64Counter("lpipe.invocations",
		metric.WithDescription("Batches processed, by source and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.invocations counter: %w", err)
	}

	records, err := meter.Int64Counter("lpipe.records",
		metric.WithDescription("Records processed, by source and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.records counter: %w", err)
	}

	recordDuration, err := meter.Float64Histogram("lpipe.record.duration",
		metric.WithDescription("Duration of one record dispatch in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.record.duration histogram: %w", err)
	}

	handlerDuration, err := meter.Float64Histogram("lpipe.handler.duration",
		metric.WithDescription("Duration of one handler call in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.handler.duration histogram: %w", err)
	}

	puts, err := meter.Int64Counter("lpipe.puts",
		metric.WithDescription("Outbound records, by transport and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.puts counter: %w", err)
	}

	failures, err := meter.Int64Counter("lpipe.failures",
		metric.WithDescription("Observed failures, by code and severity"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.failures counter: %w", err)
	}

	active, err := meter.Int64UpDownCounter("lpipe.invocations.active",
		metric.WithDescription("Batches currently being processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lpipe.invocations.active gauge: %w", err)
	}

	return &Metrics{
		invocations:      invocations,
		records:          records,
		recordDuration:   recordDuration,
		handlerDuration:  handlerDuration,
		puts:             puts,
		failures:         failures,
		invocationActive: active,
	}, nil
}

// RecordInvocationStart increments the active invocation count.
func (m *Metrics) RecordInvocationStart(ctx context.Context) {
	m.invocationActive.Add(ctx, 1)
}

// RecordInvocationEnd decrements active invocations and counts the finished one.
func (m *Metrics) RecordInvocationEnd(ctx context.Context, source, status string) {
	m.invocationActive.Add(ctx, -1)
	m.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}

// RecordRecord counts one record and its dispatch time.
func (m *Metrics) RecordRecord(ctx context.Context, source, outcome string, duration time.Duration) {
	m.records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
	m.recordDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordHandler records one handler call.
func (m *Metrics) RecordHandler(ctx context.Context, path, function, status string, duration time.Duration) {
	m.handlerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("function", function),
		attribute.String("status", status),
	))
}

// RecordPut counts one outbound record.
func (m *Metrics) RecordPut(ctx context.Context, transport, status string) {
	m.puts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("status", status),
	))
}

// RecordFailure counts one failure by code and severity.
func (m *Metrics) RecordFailure(ctx context.Context, code, severity string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
		attribute.String("severity", severity),
	))
}
