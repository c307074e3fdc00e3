package otel

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

func newTraceProvider(ctx context.Context, c *OpenTelemetryConfig, res *resource.Resource) (*trace.TracerProvider, error) {
	if c.Traces == nil {
		return nil, nil
	}

	var err error
	var traceExporter trace.SpanExporter
	switch {
	case c.Traces.Exporter == OpenTelemetryExporterStdout:
		traceExporter, err = stdouttrace.New()
	case c.Traces.Protocol == OpenTelemetryProtocolGRPC:
		traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(), // TODO: support TLS
			otlptracegrpc.WithEndpoint(c.Traces.Endpoint),
		)
	default:
		traceExporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(), // TODO: support TLS
			otlptracehttp.WithEndpointURL(ensureHTTPEndpoint("traces", c.Traces.Endpoint)),
		)
	}

	if err != nil {
		return nil, err
	}

	traceProvider := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)

	return traceProvider, nil
}

func newMeterProvider(ctx context.Context, c *OpenTelemetryConfig, res *resource.Resource) (*metric.MeterProvider, error) {
	if c.Metrics == nil {
		return nil, nil
	}

	var err error
	var metricExporter metric.Exporter
	switch {
	case c.Metrics.Exporter == OpenTelemetryExporterStdout:
		metricExporter, err = stdoutmetric.New()
	case c.Metrics.Protocol == OpenTelemetryProtocolGRPC:
		metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithInsecure(), // TODO: support TLS
			otlpmetricgrpc.WithEndpoint(c.Metrics.Endpoint),
		)
	default:
		metricExporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithInsecure(), // TODO: support TLS
			otlpmetrichttp.WithEndpointURL(ensureHTTPEndpoint("metrics", c.Metrics.Endpoint)),
		)
	}

	if err != nil {
		return nil, err
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	return meterProvider, nil
}

func newLoggerProvider(ctx context.Context, c *OpenTelemetryConfig, res *resource.Resource) (*log.LoggerProvider, error) {
	if c.Logs == nil {
		return nil, nil
	}

	var err error
	var logExporter log.Exporter
	switch {
	case c.Logs.Exporter == OpenTelemetryExporterStdout:
		logExporter, err = stdoutlog.New()
	case c.Logs.Protocol == OpenTelemetryProtocolGRPC:
		logExporter, err = otlploggrpc.New(ctx,
			otlploggrpc.WithInsecure(), // TODO: support TLS
			otlploggrpc.WithEndpoint(c.Logs.Endpoint),
		)
	default:
		logExporter, err = otlploghttp.New(ctx,
			otlploghttp.WithInsecure(), // TODO: support TLS
			otlploghttp.WithEndpointURL(ensureHTTPEndpoint("logs", c.Logs.Endpoint)),
		)
	}

	if err != nil {
		return nil, err
	}

	loggerProvider := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(logExporter)),
		log.WithResource(res),
	)
	return loggerProvider, nil
}

func ensureHTTPEndpoint(exporterType string, endpoint string) string {
	fullEndpoint := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		fullEndpoint = "http://" + endpoint
	}
	if !strings.HasSuffix(endpoint, "/v1/"+exporterType) {
		fullEndpoint = fullEndpoint + "/v1/" + exporterType
	}
	return fullEndpoint
}
