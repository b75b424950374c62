package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ObservabilityConfig holds observability configuration for a process.
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string

	// MetricsPort is the port for the /metrics, /health, /ready endpoints.
	// Zero disables the HTTP server.
	MetricsPort int

	EnableTracing bool

	// TraceExporter selects the exporter ("stdout", "jaeger", "otlp").
	// Only "stdout" is implemented; the others fall back to it.
	TraceExporter string
}

// ObservabilityManager owns tracing and the metrics/health HTTP server for a process.
type ObservabilityManager struct {
	config         *ObservabilityConfig
	tracerProvider *sdktrace.TracerProvider
	metricsServer  *http.Server
	shutdownOnce   sync.Once
}

// NewObservabilityManager creates a new observability manager.
func NewObservabilityManager(config *ObservabilityConfig) *ObservabilityManager {
	if config == nil {
		config = &ObservabilityConfig{
			ServiceName:    "unknown",
			ServiceVersion: "0.0.0",
			TraceExporter:  "stdout",
		}
	}

	return &ObservabilityManager{config: config}
}

// Initialize sets up tracing and the metrics server.
func (o *ObservabilityManager) Initialize(ctx context.Context) error {
	slog.Info("initializing observability",
		"service_name", o.config.ServiceName,
		"service_version", o.config.ServiceVersion,
		"metrics_port", o.config.MetricsPort,
		"enable_tracing", o.config.EnableTracing)

	if o.config.EnableTracing {
		if err := o.initializeTracing(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		slog.Info("tracing initialized", "service_name", o.config.ServiceName, "exporter", o.config.TraceExporter)
	}

	if o.config.MetricsPort > 0 {
		if err := o.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		slog.Info("metrics server started", "port", o.config.MetricsPort)
	}

	return nil
}

func (o *ObservabilityManager) initializeTracing(ctx context.Context) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(o.config.ServiceName),
			semconv.ServiceVersion(o.config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter

	switch o.config.TraceExporter {
	case "jaeger":
		slog.Warn("jaeger exporter not implemented, falling back to stdout")
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		slog.Warn("otlp exporter not implemented, falling back to stdout")
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "stdout", "":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		slog.Warn("unknown trace exporter, falling back to stdout", "exporter", o.config.TraceExporter)
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	o.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(o.tracerProvider)

	return nil
}

// GetTracer returns a tracer for the given component name.
func (o *ObservabilityManager) GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func (o *ObservabilityManager) startMetricsServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "# HELP tweetpulse_info service build information\n")
		fmt.Fprintf(w, "# TYPE tweetpulse_info gauge\n")
		fmt.Fprintf(w, "tweetpulse_info{name=%q,version=%q} 1\n", o.config.ServiceName, o.config.ServiceVersion)
	})

	o.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", o.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "port", o.config.MetricsPort)
		if err := o.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down tracing and the metrics server. Safe to call more than once.
func (o *ObservabilityManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	o.shutdownOnce.Do(func() {
		slog.Info("shutting down observability")

		if o.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shutdown metrics server", "error", err)
				shutdownErr = fmt.Errorf("metrics server shutdown: %w", err)
			}
		}

		if o.tracerProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := o.tracerProvider.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shutdown tracer provider", "error", err)
				if shutdownErr == nil {
					shutdownErr = fmt.Errorf("tracer provider shutdown: %w", err)
				}
			}
		}
	})

	return shutdownErr
}

// DefaultObservabilityConfig returns a development-mode configuration: stdout tracing, no metrics server.
func DefaultObservabilityConfig(serviceName, serviceVersion string) *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		MetricsPort:    0,
		EnableTracing:  true,
		TraceExporter:  "stdout",
	}
}
