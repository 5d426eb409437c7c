// Package config loads and validates scanner configuration from YAML, with
// environment overrides for deployment-specific values like database URLs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/archon-research/jsonrpc-scan/internal/pkg/env"
)

// Duration wraps time.Duration with YAML support for strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Endpoint is one JSON-RPC endpoint under comparison.
type Endpoint struct {
	// Name labels the endpoint in reports. Must be unique.
	Name string `yaml:"name"`

	// HTTPURL is the JSON-RPC HTTP endpoint.
	HTTPURL string `yaml:"http_url"`

	// WSURL optionally enables the websocket newHeads subscription.
	WSURL string `yaml:"ws_url"`

	// Headers are extra HTTP headers, e.g. for authentication.
	Headers map[string]string `yaml:"headers"`

	// RateLimit is the sustained requests-per-second budget. Zero uses the
	// client default.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rate_burst"`

	// Timeout bounds a single HTTP request.
	Timeout Duration `yaml:"timeout"`
}

// Scan describes what to scan and how hard to push.
type Scan struct {
	// Name identifies the scan for checkpointing.
	Name string `yaml:"name"`

	// Mode is "range" or "follow".
	Mode string `yaml:"mode"`

	From int64 `yaml:"from"`
	To   int64 `yaml:"to"`

	// BlockHash selects a single-block scan by hash instead of a range.
	BlockHash string `yaml:"block_hash"`

	// Confirmations is the follow-mode distance behind the chain head.
	Confirmations int64 `yaml:"confirmations"`

	// PollInterval is the follow-mode head polling cadence.
	PollInterval Duration `yaml:"poll_interval"`

	// Concurrency bounds the blocks in flight at once.
	Concurrency int `yaml:"concurrency"`

	// MaxConsecutiveFailures aborts the scan after this many failed blocks
	// in a row. Zero disables the abort.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// BlockTimeout bounds the fan-out fetch for one block.
	BlockTimeout Duration `yaml:"block_timeout"`

	// FullTransactions requests full transaction objects. Defaults to true.
	FullTransactions *bool `yaml:"full_transactions"`

	// CompareReceipts additionally compares eth_getBlockReceipts. Defaults
	// to true.
	CompareReceipts *bool `yaml:"compare_receipts"`

	// Reference names the endpoint listed first in diff groups.
	Reference string `yaml:"reference"`
}

// Retry holds the per-endpoint retry policy.
type Retry struct {
	MaxRetries     int      `yaml:"max_retries"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	BackoffFactor  float64  `yaml:"backoff_factor"`
}

// Postgres configures the optional checkpoint store.
type Postgres struct {
	// URL is the connection string. Empty disables checkpointing.
	// Overridable via POSTGRES_URL.
	URL string `yaml:"url"`
}

// Redis configures the optional response cache.
type Redis struct {
	// Addr is the server address. Empty disables caching.
	// Overridable via REDIS_ADDR.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`

	// DB selects the logical database. Overridable via REDIS_DB.
	DB  int      `yaml:"db"`
	TTL Duration `yaml:"ttl"`
}

// Report configures where scan output goes.
type Report struct {
	// Path is the JSONL output file. Empty writes to stdout.
	Path string `yaml:"path"`
}

// Config is the root scanner configuration.
type Config struct {
	Endpoints []Endpoint `yaml:"endpoints"`
	Scan      Scan       `yaml:"scan"`
	Retry     Retry      `yaml:"retry"`

	// Policy overrides the default field classification: path to one of
	// "compare", "ignore" or "informational". Paths use generic array
	// segments, e.g. "transactions[].gasPrice".
	Policy map[string]string `yaml:"policy"`

	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Report   Report   `yaml:"report"`
}

// Load reads, parses and validates the YAML file at path, applying
// environment overrides afterwards.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromURLs builds a minimal validated configuration straight from endpoint
// URLs, naming them endpoint-1..N. Convenient for embedding and tests.
func FromURLs(urls ...string) (*Config, error) {
	cfg := &Config{}
	for i, u := range urls {
		cfg.Endpoints = append(cfg.Endpoints, Endpoint{
			Name:    fmt.Sprintf("endpoint-%d", i+1),
			HTTPURL: u,
		})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if url := env.Get("POSTGRES_URL", ""); url != "" {
		c.Postgres.URL = url
	}
	if addr := env.Get("REDIS_ADDR", ""); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := env.Get("REDIS_PASSWORD", ""); pw != "" {
		c.Redis.Password = pw
	}
	c.Redis.DB = env.GetInt("REDIS_DB", c.Redis.DB)
}

// validPolicyClasses are the accepted field classification names.
var validPolicyClasses = map[string]bool{
	"compare":       true,
	"ignore":        true,
	"informational": true,
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Endpoints) < 2 {
		return fmt.Errorf("at least 2 endpoints are required, got %d", len(c.Endpoints))
	}
	names := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint %d: name is required", i)
		}
		if ep.HTTPURL == "" {
			return fmt.Errorf("endpoint %q: http_url is required", ep.Name)
		}
		if names[ep.Name] {
			return fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		names[ep.Name] = true
	}

	switch c.Scan.Mode {
	case "", "range":
		if c.Scan.BlockHash == "" && c.Scan.To < c.Scan.From {
			return fmt.Errorf("invalid range: from=%d to=%d", c.Scan.From, c.Scan.To)
		}
	case "follow":
		if c.Scan.Confirmations < 0 {
			return fmt.Errorf("confirmations must be >= 0, got %d", c.Scan.Confirmations)
		}
	default:
		return fmt.Errorf("unknown scan mode %q (want \"range\" or \"follow\")", c.Scan.Mode)
	}

	if c.Scan.Reference != "" && !names[c.Scan.Reference] {
		return fmt.Errorf("reference endpoint %q is not configured", c.Scan.Reference)
	}

	for path, class := range c.Policy {
		if !validPolicyClasses[class] {
			return fmt.Errorf("policy %q: unknown class %q", path, class)
		}
	}
	return nil
}

// FullTransactionsOrDefault returns the effective full_transactions setting.
func (s Scan) FullTransactionsOrDefault() bool {
	if s.FullTransactions == nil {
		return true
	}
	return *s.FullTransactions
}

// CompareReceiptsOrDefault returns the effective compare_receipts setting.
func (s Scan) CompareReceiptsOrDefault() bool {
	if s.CompareReceipts == nil {
		return true
	}
	return *s.CompareReceipts
}
