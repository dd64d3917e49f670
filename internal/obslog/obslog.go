// Package obslog wires the core's structured logger and OpenTelemetry
// tracer/meter providers.
package obslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// ParseLevel converts a string log level to slog.Level, defaulting to
// warn for anything unrecognized.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New builds the process-wide logger. format is "text" or "json".
func New(w io.Writer, levelStr, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Tracing holds the process-wide tracer/meter providers. Components
// pull a named tracer from here rather than calling otel.Tracer
// directly, so tests can substitute a no-op provider.
type Tracing struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewStdoutTracing wires a stdout span exporter, suitable for local runs
// and tests.
func NewStdoutTracing(ctx context.Context) (*Tracing, func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("obslog: create stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return &Tracing{
		TracerProvider: tp,
		MeterProvider:  otel.GetMeterProvider(),
	}, tp.Shutdown, nil
}

// NewNoop returns a Tracing backed by no-op providers, for tests and
// for callers who don't want span output.
func NewNoop() *Tracing {
	return &Tracing{
		TracerProvider: nooptrace.NewTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}
}

func (t *Tracing) Tracer(name string) trace.Tracer {
	return t.TracerProvider.Tracer(name)
}
