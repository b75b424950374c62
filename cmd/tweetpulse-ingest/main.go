// Command tweetpulse-ingest runs the full tweet ingestion pipeline: it
// wires concrete Redis, Postgres, and NATS drivers, builds the
// deduplication, enrichment, storage, and batch-write stages described in
// internal/pipeline, and runs until an interrupt or termination signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrepp/tweetpulse/internal/batchwriter"
	"github.com/jrepp/tweetpulse/internal/cache"
	"github.com/jrepp/tweetpulse/internal/config"
	"github.com/jrepp/tweetpulse/internal/connector"
	"github.com/jrepp/tweetpulse/internal/dedup"
	"github.com/jrepp/tweetpulse/internal/enrich"
	"github.com/jrepp/tweetpulse/internal/lock"
	"github.com/jrepp/tweetpulse/internal/pipeline"
	"github.com/jrepp/tweetpulse/internal/staging"
	"github.com/jrepp/tweetpulse/internal/storage"
	"github.com/jrepp/tweetpulse/internal/stream"
	kafkadriver "github.com/jrepp/tweetpulse/pkg/drivers/kafka"
	natsdriver "github.com/jrepp/tweetpulse/pkg/drivers/nats"
	postgresdriver "github.com/jrepp/tweetpulse/pkg/drivers/postgres"
	redisdriver "github.com/jrepp/tweetpulse/pkg/drivers/redis"
	"github.com/jrepp/tweetpulse/pkg/plugin"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, overlays defaults)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*configPath); err != nil {
		slog.Error("tweetpulse-ingest exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obsConfig := plugin.DefaultObservabilityConfig(cfg.ServiceName, cfg.ServiceVersion)
	obsConfig.MetricsPort = cfg.MetricsPort
	obs := plugin.NewObservabilityManager(obsConfig)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer obs.Shutdown(context.Background())

	redisDriver := redisdriver.New()
	if err := redisDriver.Initialize(ctx, redisDriverConfig(cfg)); err != nil {
		return fmt.Errorf("initialize redis driver: %w", err)
	}
	defer redisDriver.Stop(context.Background())

	postgresDriver := postgresdriver.New()
	if err := postgresDriver.Initialize(ctx, postgresDriverConfig(cfg)); err != nil {
		return fmt.Errorf("initialize postgres driver: %w", err)
	}
	defer postgresDriver.Stop(context.Background())

	client := redisDriver.Client()

	streamStore := stream.New(client, cfg.StreamKey, cfg.StreamConsumerGroup)
	deduplicator := dedup.New(client, dedup.NewRedisBloomFilter(client))
	enricher := enrich.NewFromConfig(cfg.EnrichmentMode, cfg.Environment, cfg.InferenceURL)
	hotCache := cache.New(client)
	stagingBuffer := staging.New(cfg.StagingDir, cfg.BatchSize)
	storageSink := storage.New(hotCache, stagingBuffer)
	locks := lock.NewManager(client)
	writer := batchwriter.New(postgresDriver.Pool(), locks, cfg.BatchSize, cfg.MaxBatchWait, cfg.MaxRetries)

	var upstream connector.Connector
	if cfg.NATSURL != "" {
		natsDriver := natsdriver.New()
		if err := natsDriver.Initialize(ctx, natsDriverConfig(cfg)); err != nil {
			return fmt.Errorf("initialize nats driver: %w", err)
		}
		defer natsDriver.Stop(context.Background())
		upstream = connector.NewNATSConnector(natsDriver, streamStore, cfg.NATSSubject)
	}

	var searchIndex stream.StreamStore
	if cfg.KafkaTopic != "" && cfg.KafkaBrokers != "" {
		kafkaDriver := kafkadriver.New()
		if err := kafkaDriver.Initialize(ctx, kafkaDriverConfig(cfg)); err != nil {
			return fmt.Errorf("initialize kafka driver: %w", err)
		}
		defer kafkaDriver.Stop(context.Background())
		go kafkaDriver.Start(ctx)
		searchIndex = stream.NewKafkaStreamStore(kafkaDriver, cfg.KafkaTopic)
	}

	p := pipeline.New(streamStore, upstream, deduplicator, enricher, storageSink, writer, locks, cfg.NumWorkers, cfg.StreamStartFrom, searchIndex)

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("received shutdown signal", "signal", sig)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer stopCancel()

	return p.Stop(stopCtx)
}

func redisDriverConfig(cfg *config.Config) *plugin.Config {
	return &plugin.Config{
		Plugin: plugin.DriverConfig{Name: "redis", Version: "0.1.0"},
		Backend: map[string]any{
			"address": cfg.RedisURL,
		},
	}
}

func postgresDriverConfig(cfg *config.Config) *plugin.Config {
	return &plugin.Config{
		Plugin: plugin.DriverConfig{Name: "postgres", Version: "0.1.0"},
		Backend: map[string]any{
			"database_url": cfg.DatabaseURL,
		},
	}
}

func natsDriverConfig(cfg *config.Config) *plugin.Config {
	return &plugin.Config{
		Plugin: plugin.DriverConfig{Name: "nats", Version: "0.1.0"},
		Backend: map[string]any{
			"url": cfg.NATSURL,
		},
	}
}

func kafkaDriverConfig(cfg *config.Config) *plugin.Config {
	return &plugin.Config{
		Plugin: plugin.DriverConfig{Name: "kafka", Version: "0.1.0"},
		Backend: map[string]any{
			"brokers":           []string{cfg.KafkaBrokers},
			"topic":             cfg.KafkaTopic,
			"consumer_group":    cfg.StreamConsumerGroup + "-search-index",
			"compression":       "snappy",
			"acks":              "all",
			"auto_offset_reset": "earliest",
		},
	}
}
