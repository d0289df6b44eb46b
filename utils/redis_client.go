package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPoolSize = 100
	redisPingTimeout     = 5 * time.Second
	redisHealthTimeout   = 2 * time.Second
)

// RedisOptions configures the client shared by the ledger, the ticket mirror
// and the rate limiter.
type RedisOptions struct {
	URL      string
	PoolSize int
}

func redisOptions(o RedisOptions) *redis.Options {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		// bare host:port
		opts = &redis.Options{Addr: o.URL}
	}

	// Gates open at once, so scans arrive in bursts.
	opts.PoolSize = o.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultRedisPoolSize
	}
	opts.MinIdleConns = opts.PoolSize / 10
	opts.MaxRetries = 3
	opts.ClientName = "ticket-pass"
	opts.ContextTimeoutEnabled = true
	return opts
}

// NewRedisClient connects and pings once so a bad REDIS_URL fails at startup.
func NewRedisClient(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	opts := redisOptions(o)
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	return client, nil
}

// RedisHealthCheck pings within a short deadline for the /health route.
func RedisHealthCheck(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, redisHealthTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
