// Package telemetry installs the OpenTelemetry tracer provider for pipeline runs.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rbright/navieyes/internal/config"
	"github.com/rbright/navieyes/internal/logging"
	"github.com/rbright/navieyes/internal/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// TraceFile is the state-dir file stdout traces are appended to.
const TraceFile = "trace.jsonl"

// Shutdown flushes and stops the installed provider.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs a tracer provider per cfg and returns its shutdown. With
// tracing disabled the global no-op provider stays in place. An OTLP
// endpoint takes precedence over the trace file.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (Shutdown, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if !cfg.Trace && endpoint == "" {
		return noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("navieyes"),
			semconv.ServiceVersion(version.Current().Version),
			attribute.Int("process.pid", os.Getpid()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	if endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		if logger != nil {
			logger.Info("telemetry initialized", slog.String("exporter", "otlp"), slog.String("endpoint", endpoint))
		}
		return tp.Shutdown, nil
	}

	path, err := logging.StatePath(TraceFile)
	if err != nil {
		return nil, fmt.Errorf("resolve trace path: %w", err)
	}
	file, err := logging.OpenStateFile(path)
	if err != nil {
		return nil, err
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	if logger != nil {
		logger.Info("telemetry initialized", slog.String("exporter", "file"), slog.String("path", path))
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), file.Close())
	}, nil
}
