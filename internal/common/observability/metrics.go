package observability

import (
	"context"
	"time"

	"sqpr-engine/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	logger         logger.Logger
}

// New installs the global meter and tracer providers. Metrics are exported
// through the Prometheus registry; finished spans are written to log at
// debug level.
func New(serviceName string, log logger.Logger) *Observability {
	o := &Observability{logger: log}

	o.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(newLogProcessor(log)),
	)
	otel.SetTracerProvider(o.tracerProvider)

	exporter, err := prometheus.New()
	if err != nil {
		log.Error("failed to create prometheus exporter", map[string]interface{}{"error": err})
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(o.meterProvider)

	o.meter = o.meterProvider.Meter(serviceName)
	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	return o
}

// TracerProvider is handed to components that open spans.
func (o *Observability) TracerProvider() trace.TracerProvider {
	if o.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return o.tracerProvider
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			o.logger.Warn("tracer provider shutdown failed", map[string]interface{}{"error": err})
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			o.logger.Warn("meter provider shutdown failed", map[string]interface{}{"error": err})
		}
	}
}
