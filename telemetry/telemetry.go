// Package telemetry provides structured logging and OpenTelemetry
// instrumentation for scan and evaluation runs.
package telemetry

import (
	"context"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/aerographer/config"
)

// Provider wraps the OTEL tracer and meter providers plus the run metrics.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *prom.Registry

	scanUnitDuration metric.Float64Histogram
	resourcesScanned metric.Int64Counter
	scanFailures     metric.Int64Counter
	evaluations      metric.Int64Counter
	evalFailures     metric.Int64Counter
}

// NewProvider creates a telemetry provider. Traces export over OTLP when an
// endpoint is configured; metrics always feed a local Prometheus registry
// and additionally export over OTLP when enabled.
func NewProvider(ctx context.Context, cfg config.OTELConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{registry: prom.NewRegistry()}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}
	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("aerographer")
	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	promReader, err := promexporter.New(promexporter.WithRegisterer(p.registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promReader),
	}

	if cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("aerographer")
	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.scanUnitDuration, err = p.meter.Float64Histogram(
		"aerographer_scan_unit_duration_seconds",
		metric.WithDescription("Duration of one (context, kind) scan unit"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create scan_unit_duration: %w", err)
	}

	p.resourcesScanned, err = p.meter.Int64Counter(
		"aerographer_resources_scanned_total",
		metric.WithDescription("Total resources published into the survey"),
	)
	if err != nil {
		return fmt.Errorf("create resources_scanned: %w", err)
	}

	p.scanFailures, err = p.meter.Int64Counter(
		"aerographer_scan_failures_total",
		metric.WithDescription("Total failed scan units"),
	)
	if err != nil {
		return fmt.Errorf("create scan_failures: %w", err)
	}

	p.evaluations, err = p.meter.Int64Counter(
		"aerographer_evaluations_total",
		metric.WithDescription("Total check executions"),
	)
	if err != nil {
		return fmt.Errorf("create evaluations: %w", err)
	}

	p.evalFailures, err = p.meter.Int64Counter(
		"aerographer_evaluation_failures_total",
		metric.WithDescription("Total check executions ending in a failed result"),
	)
	if err != nil {
		return fmt.Errorf("create evaluation_failures: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter { return p.meter }

// Registry returns the Prometheus registry backing the scrape endpoint.
func (p *Provider) Registry() *prom.Registry { return p.registry }

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordScanUnit records one settled scan unit.
func (p *Provider) RecordScanUnit(ctx context.Context, contextName, kind string, d time.Duration, resources int, failed bool) {
	attrs := metric.WithAttributes(
		attribute.String("context", contextName),
		attribute.String("kind", kind),
	)
	p.scanUnitDuration.Record(ctx, d.Seconds(), attrs)
	p.resourcesScanned.Add(ctx, int64(resources), attrs)
	if failed {
		p.scanFailures.Add(ctx, 1, attrs)
	}
}

// RecordEvaluation records one check execution.
func (p *Provider) RecordEvaluation(ctx context.Context, kind, check string, passed bool) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("check", check),
	)
	p.evaluations.Add(ctx, 1, attrs)
	if !passed {
		p.evalFailures.Add(ctx, 1, attrs)
	}
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
