// Package redis provides a Redis implementation of the ResponseCache port.
//
// Raw endpoint payloads are stored with a configurable TTL under keys of the
// form prefix:endpoint:blockRef:kind, so re-runs over an already-scanned
// range hit the cache instead of the endpoints.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Compile-time check that ResponseCache implements outbound.ResponseCache
var _ outbound.ResponseCache = (*ResponseCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached payloads live before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       24 * time.Hour,
		KeyPrefix: "jrscan",
	}
}

// ResponseCache is a Redis implementation of the outbound.ResponseCache port.
type ResponseCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewResponseCache creates a new Redis response cache.
func NewResponseCache(cfg Config, logger *slog.Logger) (*ResponseCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-cache")

	return &ResponseCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *ResponseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *ResponseCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:endpoint:blockRef:kind.
// BlockRef renders as the decimal height or the block hash.
func (c *ResponseCache) key(endpoint string, ref entity.BlockRef, kind string) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.keyPrefix, endpoint, ref, kind)
}

// Get retrieves a cached payload. Returns nil, nil on a cache miss.
func (c *ResponseCache) Get(ctx context.Context, endpoint string, ref entity.BlockRef, kind string) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, c.key(endpoint, ref, kind)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached %s: %w", kind, err)
	}
	return data, nil
}

// Set stores a payload.
func (c *ResponseCache) Set(ctx context.Context, endpoint string, ref entity.BlockRef, kind string, data json.RawMessage) error {
	if err := c.client.Set(ctx, c.key(endpoint, ref, kind), []byte(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", kind, err)
	}
	return nil
}

// Delete removes all cached payloads for one endpoint and block.
func (c *ResponseCache) Delete(ctx context.Context, endpoint string, ref entity.BlockRef) error {
	keys := []string{
		c.key(endpoint, ref, outbound.PayloadBlock),
		c.key(endpoint, ref, outbound.PayloadReceipts),
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cached block: %w", err)
	}
	return nil
}
