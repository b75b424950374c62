// Package postgres implements the Postgres backend driver: connection pool
// lifecycle, schema management, and the Pool() accessor internal/batchwriter
// uses to upsert enriched tweets.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrepp/tweetpulse/pkg/plugin"
)

// PostgresPlugin manages the connection pool backing the tweets table.
type PostgresPlugin struct {
	pool   *pgxpool.Pool
	config *PostgresConfig
}

// PostgresConfig holds Postgres-specific configuration
type PostgresConfig struct {
	DatabaseURL    string `yaml:"database_url"`
	PoolSize       int    `yaml:"pool_size"`
	DefaultTimeout int    `yaml:"default_timeout_seconds"`
}

// New creates a new PostgreSQL plugin instance
func New() *PostgresPlugin {
	return &PostgresPlugin{}
}

// Name returns the plugin identifier
func (p *PostgresPlugin) Name() string {
	return "postgres"
}

// Version returns the plugin version
func (p *PostgresPlugin) Version() string {
	return "0.1.0"
}

// Initialize prepares the PostgreSQL connection pool and creates the
// tweets table schema.
func (p *PostgresPlugin) Initialize(ctx context.Context, config *plugin.Config) error {
	slog.Info("initializing postgres plugin", "version", p.Version())

	var pgConfig PostgresConfig
	_ = config.GetBackendConfig(&pgConfig)

	if pgConfig.DatabaseURL == "" {
		if connStr, ok := config.Backend["connection_string"].(string); ok {
			pgConfig.DatabaseURL = connStr
		} else if dbURL, ok := config.Backend["database_url"].(string); ok {
			pgConfig.DatabaseURL = dbURL
		}
	}

	if pgConfig.PoolSize == 0 {
		if poolSize, ok := config.Backend["pool_size"].(int); ok {
			pgConfig.PoolSize = poolSize
		} else {
			pgConfig.PoolSize = 10
		}
	}
	if pgConfig.DefaultTimeout == 0 {
		pgConfig.DefaultTimeout = 30
	}

	p.config = &pgConfig

	dbURL := pgConfig.DatabaseURL
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL not configured (tried connection_string and database_url fields)")
	}

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(pgConfig.PoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	p.pool = pool

	if err := p.createSchema(ctx); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	slog.Info("postgres plugin initialized", "max_conns", poolConfig.MaxConns)

	return nil
}

// createSchema creates the tweets table that internal/batchwriter upserts
// enriched records into, matching model.TweetRow's columns.
func (p *PostgresPlugin) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS tweets (
			id               VARCHAR(64) PRIMARY KEY,
			content          TEXT NOT NULL,
			author_id        VARCHAR(64) NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL,
			sentiment        VARCHAR(16) NOT NULL,
			confidence       DOUBLE PRECISION NOT NULL,
			retweet_count    BIGINT NOT NULL DEFAULT 0,
			like_count       BIGINT NOT NULL DEFAULT 0,
			reply_count      BIGINT NOT NULL DEFAULT 0,
			quote_count      BIGINT NOT NULL DEFAULT 0,
			bookmark_count   BIGINT NOT NULL DEFAULT 0,
			impression_count BIGINT NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_tweets_author_id ON tweets(author_id);
		CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);
		CREATE INDEX IF NOT EXISTS idx_tweets_sentiment ON tweets(sentiment);
	`

	_, err := p.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Start begins serving requests
func (p *PostgresPlugin) Start(ctx context.Context) error {
	slog.Info("postgres plugin started")
	<-ctx.Done()
	slog.Info("postgres plugin stopping")
	return nil
}

// Stop gracefully shuts down the plugin
func (p *PostgresPlugin) Stop(ctx context.Context) error {
	slog.Info("stopping postgres plugin")

	if p.pool != nil {
		p.pool.Close()
		slog.Info("closed database connection pool")
	}

	return nil
}

// Health reports the plugin health status
func (p *PostgresPlugin) Health(ctx context.Context) (*plugin.HealthStatus, error) {
	if p.pool == nil {
		return &plugin.HealthStatus{
			Status:  plugin.HealthUnhealthy,
			Message: "database pool not initialized",
		}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.pool.Ping(pingCtx); err != nil {
		return &plugin.HealthStatus{
			Status:  plugin.HealthUnhealthy,
			Message: fmt.Sprintf("database ping failed: %v", err),
			Details: map[string]string{
				"error": err.Error(),
			},
		}, nil
	}

	stats := p.pool.Stat()
	if stats.AcquiredConns() >= int32(float64(stats.MaxConns())*0.9) {
		return &plugin.HealthStatus{
			Status:  plugin.HealthDegraded,
			Message: "connection pool near capacity",
			Details: map[string]string{
				"acquired": fmt.Sprintf("%d", stats.AcquiredConns()),
				"max":      fmt.Sprintf("%d", stats.MaxConns()),
				"idle":     fmt.Sprintf("%d", stats.IdleConns()),
			},
		}, nil
	}

	return &plugin.HealthStatus{
		Status:  plugin.HealthHealthy,
		Message: "database healthy",
		Details: map[string]string{
			"acquired": fmt.Sprintf("%d", stats.AcquiredConns()),
			"max":      fmt.Sprintf("%d", stats.MaxConns()),
			"idle":     fmt.Sprintf("%d", stats.IdleConns()),
		},
	}, nil
}

// Pool exposes the underlying *pgxpool.Pool so internal/batchwriter can
// send its pipelined upsert batches through the same connection pool this
// plugin manages.
func (p *PostgresPlugin) Pool() *pgxpool.Pool {
	return p.pool
}

var _ plugin.Plugin = (*PostgresPlugin)(nil)
