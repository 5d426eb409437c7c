package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
endpoints:
  - name: geth-local
    http_url: http://localhost:8545
    ws_url: ws://localhost:8546
    rate_limit: 20
    rate_burst: 5
    timeout: 15s
  - name: reth-remote
    http_url: https://reth.example.com
    headers:
      Authorization: Bearer token

scan:
  name: mainnet-audit
  mode: range
  from: 19000000
  to: 19000100
  concurrency: 8
  max_consecutive_failures: 5
  block_timeout: 90s
  reference: geth-local

retry:
  max_retries: 4
  initial_backoff: 200ms
  max_backoff: 10s
  backoff_factor: 2.0

policy:
  size: informational
  "transactions[].gasPrice": ignore

redis:
  addr: localhost:6379
  ttl: 12h

report:
  path: /tmp/reports.jsonl
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(cfg.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(cfg.Endpoints))
	}
	ep := cfg.Endpoints[0]
	if ep.Name != "geth-local" || ep.RateLimit != 20 || ep.RateBurst != 5 {
		t.Errorf("unexpected first endpoint: %+v", ep)
	}
	if ep.Timeout.Std() != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", ep.Timeout.Std())
	}
	if cfg.Endpoints[1].Headers["Authorization"] != "Bearer token" {
		t.Errorf("expected auth header, got %v", cfg.Endpoints[1].Headers)
	}

	if cfg.Scan.Name != "mainnet-audit" || cfg.Scan.From != 19000000 || cfg.Scan.To != 19000100 {
		t.Errorf("unexpected scan config: %+v", cfg.Scan)
	}
	if cfg.Scan.BlockTimeout.Std() != 90*time.Second {
		t.Errorf("expected block_timeout 90s, got %v", cfg.Scan.BlockTimeout.Std())
	}
	if !cfg.Scan.FullTransactionsOrDefault() || !cfg.Scan.CompareReceiptsOrDefault() {
		t.Error("expected full transactions and receipts by default")
	}

	if cfg.Retry.MaxRetries != 4 || cfg.Retry.InitialBackoff.Std() != 200*time.Millisecond {
		t.Errorf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Policy["size"] != "informational" {
		t.Errorf("unexpected policy: %v", cfg.Policy)
	}
	if cfg.Redis.TTL.Std() != 12*time.Hour {
		t.Errorf("expected redis ttl 12h, got %v", cfg.Redis.TTL.Std())
	}
}

func TestParse_BoolOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
scan:
  mode: range
  from: 1
  to: 2
  full_transactions: false
  compare_receipts: false
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scan.FullTransactionsOrDefault() {
		t.Error("expected full_transactions=false to be honored")
	}
	if cfg.Scan.CompareReceiptsOrDefault() {
		t.Error("expected compare_receipts=false to be honored")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "single endpoint",
			yaml:    "endpoints:\n  - name: a\n    http_url: http://a\n",
			wantErr: "at least 2 endpoints",
		},
		{
			name: "duplicate names",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
  - name: a
    http_url: http://b
`,
			wantErr: "duplicate endpoint name",
		},
		{
			name: "missing http_url",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
  - name: b
`,
			wantErr: "http_url is required",
		},
		{
			name: "inverted range",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
scan:
  mode: range
  from: 100
  to: 50
`,
			wantErr: "invalid range",
		},
		{
			name: "unknown mode",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
scan:
  mode: backwards
`,
			wantErr: "unknown scan mode",
		},
		{
			name: "unknown reference",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
scan:
  mode: range
  reference: c
`,
			wantErr: "reference endpoint",
		},
		{
			name: "bad policy class",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
policy:
  size: whatever
`,
			wantErr: "unknown class",
		},
		{
			name: "bad duration",
			yaml: `
endpoints:
  - name: a
    http_url: http://a
    timeout: fast
  - name: b
    http_url: http://b
`,
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://env-user@db/env")
	t.Setenv("REDIS_ADDR", "redis-env:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Parse([]byte(`
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
scan:
  mode: range
  from: 1
  to: 2
postgres:
  url: postgres://file-user@db/file
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Postgres.URL != "postgres://env-user@db/env" {
		t.Errorf("expected env override for postgres url, got %s", cfg.Postgres.URL)
	}
	if cfg.Redis.Addr != "redis-env:6379" {
		t.Errorf("expected env override for redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("expected env override for redis db, got %d", cfg.Redis.DB)
	}
}

func TestFromURLs(t *testing.T) {
	cfg, err := FromURLs("http://a:8545", "http://b:8545")
	if err != nil {
		t.Fatalf("FromURLs: %v", err)
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(cfg.Endpoints))
	}
	if cfg.Endpoints[0].Name != "endpoint-1" || cfg.Endpoints[1].HTTPURL != "http://b:8545" {
		t.Errorf("unexpected endpoints: %+v", cfg.Endpoints)
	}

	if _, err := FromURLs("http://only"); err == nil {
		t.Error("expected error for a single URL")
	}
}

func TestParse_HashScan(t *testing.T) {
	cfg, err := Parse([]byte(`
endpoints:
  - name: a
    http_url: http://a
  - name: b
    http_url: http://b
scan:
  block_hash: "0xd4e56740f876aef8c010b86a40d5f56745a118d0906a34e69aec8c0db1cb8fa3"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scan.BlockHash == "" {
		t.Error("expected block_hash to parse")
	}
}
