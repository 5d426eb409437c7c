package rpcnode

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/jsonrpc-scan/internal/pkg/clock"
)

// Config holds configuration for one JSON-RPC endpoint client.
type Config struct {
	// Name is the endpoint label used in reports and logs.
	Name string

	// HTTPURL is the HTTP JSON-RPC endpoint URL.
	HTTPURL string

	// WSURL is the optional websocket URL used by the newHeads subscriber.
	WSURL string

	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string

	// Timeout is the maximum time for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Set to 0 to disable retries.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// RateLimit is the sustained request rate allowed against this endpoint.
	RateLimit rate.Limit

	// RateBurst is the token-bucket burst size.
	RateBurst int

	// Logger for the client; slog.Default() when nil.
	Logger *slog.Logger

	// Clock drives retry backoff waits; the system clock when nil.
	Clock clock.Clock
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		RateLimit:      rate.Limit(10),
		RateBurst:      2,
	}
}

// withDefaults fills zero values from ConfigDefaults.
func (c Config) withDefaults() Config {
	d := ConfigDefaults()
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.RateLimit == 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = d.RateBurst
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	return c
}
