// Package plugin carries the lifecycle and health conventions shared by
// every backend driver in tweetpulse: Redis, Postgres, NATS, and Kafka all
// implement Plugin, and cmd/tweetpulse-ingest initializes and stops each of
// them through it. The pipeline supervisor does not call the drivers, and
// the ingest command does not poll their Health.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// DriverConfig carries the metadata a backend driver is constructed with.
type DriverConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Plugin represents a backend driver lifecycle.
type Plugin interface {
	// Name returns the backend driver name (e.g., "redis", "postgres", "kafka", "nats").
	Name() string

	// Version returns the backend driver version.
	Version() string

	// Initialize prepares the backend driver with configuration.
	Initialize(ctx context.Context, config *Config) error

	// Start begins serving requests.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the backend driver.
	Stop(ctx context.Context) error

	// Health returns the backend driver health status.
	Health(ctx context.Context) (*HealthStatus, error)
}

// BackendDriver is a type alias for Plugin to make terminology clearer at call sites.
type BackendDriver = Plugin

// HealthStatus represents backend driver health.
type HealthStatus struct {
	Status  HealthState
	Message string
	Details map[string]string
}

// HealthState represents backend driver health state.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "HEALTHY"
	case HealthDegraded:
		return "DEGRADED"
	case HealthUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// Bootstrap initializes and runs a single standalone driver with lifecycle
// management. It is not used to run the full pipeline (see
// internal/pipeline and cmd/tweetpulse-ingest); it exists for driver-level
// smoke binaries and local debugging.
func Bootstrap(p Plugin, configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("driver starting", "name", p.Name(), "version", p.Version(), "config", configPath)

	config, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return BootstrapWithConfig(p, config)
}

// BootstrapWithConfig initializes and runs a driver with a pre-loaded configuration.
func BootstrapWithConfig(p Plugin, config *Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("initializing driver", "name", p.Name(), "version", p.Version())

	if err := p.Initialize(ctx, config); err != nil {
		slog.Error("failed to initialize driver", "error", err)
		return fmt.Errorf("failed to initialize driver: %w", err)
	}
	slog.Info("driver initialized", "name", p.Name())

	errChan := make(chan error, 1)
	go func() {
		if err := p.Start(ctx); err != nil {
			slog.Error("driver start error", "name", p.Name(), "error", err)
			errChan <- fmt.Errorf("driver error: %w", err)
		}
	}()

	slog.Info("driver ready", "name", p.Name())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("driver failed", "error", err)
		return err
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	}

	slog.Info("shutting down driver", "name", p.Name())
	cancel()

	if err := p.Stop(ctx); err != nil {
		slog.Error("error stopping driver", "name", p.Name(), "error", err)
		return err
	}

	slog.Info("driver stopped", "name", p.Name())
	return nil
}
