package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrepp/tweetpulse/pkg/plugin"
	goredis "github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis pattern with miniredis
func setupTestRedis(t *testing.T) (*RedisPattern, *miniredis.Miniredis) {
	t.Helper()

	// Create miniredis server
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	// Create config pointing to miniredis
	config := &plugin.Config{
		Plugin: plugin.DriverConfig{
			Name:    "redis",
			Version: "0.1.0",
		},
		Backend: map[string]any{
			"address": mr.Addr(),
		},
	}

	// Initialize plugin
	p := New()
	ctx := context.Background()
	if err := p.Initialize(ctx, config); err != nil {
		mr.Close()
		t.Fatalf("failed to initialize plugin: %v", err)
	}

	return p, mr
}

func TestRedisPattern_New(t *testing.T) {
	p := New()

	if p.Name() != "redis" {
		t.Errorf("expected name 'redis', got '%s'", p.Name())
	}
	if p.Version() != "0.1.0" {
		t.Errorf("expected version '0.1.0', got '%s'", p.Version())
	}
}

func TestRedisPattern_Initialize(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	tests := []struct {
		name    string
		config  *plugin.Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &plugin.Config{
				Plugin: plugin.DriverConfig{Name: "redis", Version: "0.1.0"},
				Backend: map[string]any{
					"address": mr.Addr(),
				},
			},
			wantErr: false,
		},
		// Removed "defaults applied" test case - flaky because it depends on whether
		// Redis is actually running on localhost:6379. Use invalid address test instead.
		{
			name: "invalid address",
			config: &plugin.Config{
				Plugin: plugin.DriverConfig{Name: "redis", Version: "0.1.0"},
				Backend: map[string]any{
					"address": "localhost:9999", // Invalid port that's unlikely to have Redis
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			ctx := context.Background()
			err := p.Initialize(ctx, tt.config)

			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err == nil && p.client == nil {
				t.Error("Initialize() succeeded but client is nil")
			}
		})
	}
}

// TestRedisPattern_Client_ServesDomainPackages exercises Client() the way
// internal/cache, internal/dedup, internal/lock, and internal/stream
// actually use it: raw go-redis calls over the pooled connection, since
// this driver no longer carries a generic key-value surface of its own.
func TestRedisPattern_Client_ServesDomainPackages(t *testing.T) {
	p, mr := setupTestRedis(t)
	defer mr.Close()
	defer p.Stop(context.Background())

	client := p.Client()
	ctx := context.Background()

	// internal/lock's SETNX-based acquire.
	ok, err := client.SetNX(ctx, "lock:batch_writer_flush:100", "token-1", 30*time.Second).Result()
	if err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if !ok {
		t.Fatal("SetNX() on a fresh key should have succeeded")
	}

	// internal/dedup's confirmation-set membership check.
	if err := client.SAdd(ctx, "dedup:seen", "tweet-1").Err(); err != nil {
		t.Fatalf("SAdd() error = %v", err)
	}
	member, err := client.SIsMember(ctx, "dedup:seen", "tweet-1").Result()
	if err != nil {
		t.Fatalf("SIsMember() error = %v", err)
	}
	if !member {
		t.Error("SIsMember() should report tweet-1 as a member after SAdd")
	}

	// internal/stream's consumer-group stream write.
	id, err := client.XAdd(ctx, &goredis.XAddArgs{
		Stream: "tweets:stream",
		Values: map[string]any{"id": "tweet-1", "content": "hello"},
	}).Result()
	if err != nil {
		t.Fatalf("XAdd() error = %v", err)
	}
	if id == "" {
		t.Error("XAdd() returned an empty entry ID")
	}
}

func TestRedisPattern_Health(t *testing.T) {
	p, mr := setupTestRedis(t)
	defer mr.Close()
	defer p.Stop(context.Background())

	ctx := context.Background()
	health, err := p.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	if health.Status != plugin.HealthHealthy {
		t.Errorf("Health() status = %v, want %v", health.Status, plugin.HealthHealthy)
	}

	if health.Message == "" {
		t.Error("Health() message is empty")
	}

	if len(health.Details) == 0 {
		t.Error("Health() details is empty")
	}
}

func TestRedisPattern_HealthUnhealthy(t *testing.T) {
	p, mr := setupTestRedis(t)
	// Close Redis to simulate connection failure
	mr.Close()

	ctx := context.Background()
	health, err := p.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	if health.Status != plugin.HealthUnhealthy {
		t.Errorf("Health() status = %v, want %v", health.Status, plugin.HealthUnhealthy)
	}
}

func TestRedisPattern_Stop(t *testing.T) {
	p, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Verify client is closed by attempting an operation
	err := p.Client().Set(ctx, "key", "value", 0).Err()
	if err == nil {
		t.Error("Set() succeeded after Stop(), expected error")
	}
}
