// Package main provides the multi-endpoint JSON-RPC block scanner CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/archon-research/jsonrpc-scan/internal/adapters/outbound/jsonl"
	"github.com/archon-research/jsonrpc-scan/internal/adapters/outbound/postgres"
	redisadapter "github.com/archon-research/jsonrpc-scan/internal/adapters/outbound/redis"
	"github.com/archon-research/jsonrpc-scan/internal/adapters/outbound/rpcnode"
	"github.com/archon-research/jsonrpc-scan/internal/adapters/outbound/telemetry"
	"github.com/archon-research/jsonrpc-scan/internal/config"
	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/pkg/env"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
	"github.com/archon-research/jsonrpc-scan/internal/services/compat"
	"github.com/archon-research/jsonrpc-scan/internal/services/normalize"
	"github.com/archon-research/jsonrpc-scan/internal/services/scan"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	configPath := flag.String("config", "scanner.yaml", "Path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scanner\n")
		fmt.Printf("  Commit:     %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load .env if present; real environment wins.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("scanner failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("starting scanner",
		"commit", GitCommit,
		"config", configPath,
		"endpoints", len(cfg.Endpoints),
		"mode", cfg.Scan.Mode,
	)

	clients, err := buildClients(cfg, logger)
	if err != nil {
		return err
	}
	logClientVersions(ctx, logger, clients)

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	scanCfg := scan.Config{
		ScanName:               cfg.Scan.Name,
		From:                   cfg.Scan.From,
		To:                     cfg.Scan.To,
		Follow:                 cfg.Scan.Mode == "follow",
		Confirmations:          cfg.Scan.Confirmations,
		PollInterval:           cfg.Scan.PollInterval.Std(),
		Concurrency:            cfg.Scan.Concurrency,
		MaxConsecutiveFailures: cfg.Scan.MaxConsecutiveFailures,
		BlockTimeout:           cfg.Scan.BlockTimeout.Std(),
		FullTransactions:       cfg.Scan.FullTransactionsOrDefault(),
		CompareReceipts:        cfg.Scan.CompareReceiptsOrDefault(),
		Reference:              cfg.Scan.Reference,
		Policy:                 buildPolicy(cfg),
		Logger:                 logger,
	}

	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, postgres.DefaultDBConfig(cfg.Postgres.URL))
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()

		store := postgres.NewCheckpointStore(db)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating checkpoint schema: %w", err)
		}
		scanCfg.Checkpoint = store
	}

	if cfg.Redis.Addr != "" {
		cacheCfg := redisadapter.ConfigDefaults()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		if cfg.Redis.TTL.Std() > 0 {
			cacheCfg.TTL = cfg.Redis.TTL.Std()
		}
		cache, err := redisadapter.NewResponseCache(cacheCfg, logger)
		if err != nil {
			return fmt.Errorf("creating response cache: %w", err)
		}
		defer cache.Close()
		scanCfg.Cache = cache
	}

	metricsShutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    "jsonrpc-scan",
		ServiceVersion: GitCommit,
		Environment:    env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint:   env.Get("OTLP_ENDPOINT", ""),
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer metricsShutdown(context.Background()) //nolint:errcheck

	metrics, err := telemetry.NewMetrics("jsonrpc-scan")
	if err != nil {
		return fmt.Errorf("creating metrics recorder: %w", err)
	}
	scanCfg.Metrics = metrics

	// Prefer a websocket subscription for follow mode when the first
	// endpoint exposes one; the coordinator falls back to polling otherwise.
	if scanCfg.Follow && cfg.Endpoints[0].WSURL != "" {
		sub, err := rpcnode.NewSubscriber(endpointConfig(cfg.Endpoints[0], cfg.Retry, logger))
		if err != nil {
			return fmt.Errorf("creating head subscriber: %w", err)
		}
		defer sub.Close()
		scanCfg.Heads = sub
	}

	svc, err := scan.New(scanCfg, clients, sink)
	if err != nil {
		return fmt.Errorf("creating scan service: %w", err)
	}

	if cfg.Scan.BlockHash != "" {
		if _, err := svc.ScanOne(ctx, entity.HashRef(cfg.Scan.BlockHash)); err != nil {
			return fmt.Errorf("scanning block %s: %w", cfg.Scan.BlockHash, err)
		}
		return nil
	}

	terminal, err := svc.Run(ctx)
	logger.Info("scan finished", "terminal", terminal)
	if terminal == entity.ScanAborted {
		return err
	}
	return nil
}

// buildClients creates one RPC client per configured endpoint.
func buildClients(cfg *config.Config, logger *slog.Logger) ([]outbound.RPCClient, error) {
	clients := make([]outbound.RPCClient, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		client, err := rpcnode.NewClient(endpointConfig(ep, cfg.Retry, logger))
		if err != nil {
			return nil, fmt.Errorf("creating client %q: %w", ep.Name, err)
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func endpointConfig(ep config.Endpoint, retry config.Retry, logger *slog.Logger) rpcnode.Config {
	c := rpcnode.ConfigDefaults()
	c.Name = ep.Name
	c.HTTPURL = ep.HTTPURL
	c.WSURL = ep.WSURL
	c.Headers = ep.Headers
	c.Logger = logger
	if ep.Timeout.Std() > 0 {
		c.Timeout = ep.Timeout.Std()
	}
	if ep.RateLimit > 0 {
		c.RateLimit = rate.Limit(ep.RateLimit)
	}
	if ep.RateBurst > 0 {
		c.RateBurst = ep.RateBurst
	}
	if retry.MaxRetries > 0 {
		c.MaxRetries = retry.MaxRetries
	}
	if retry.InitialBackoff.Std() > 0 {
		c.InitialBackoff = retry.InitialBackoff.Std()
	}
	if retry.MaxBackoff.Std() > 0 {
		c.MaxBackoff = retry.MaxBackoff.Std()
	}
	if retry.BackoffFactor > 0 {
		c.BackoffFactor = retry.BackoffFactor
	}
	return c
}

// buildSink creates the JSONL report sink, on stdout unless a path is set.
func buildSink(cfg *config.Config) (outbound.ReportSink, func(), error) {
	if cfg.Report.Path == "" {
		return jsonl.NewSink(os.Stdout), func() {}, nil
	}
	sink, err := jsonl.NewFileSink(cfg.Report.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating report sink: %w", err)
	}
	return sink, func() { sink.Close() }, nil
}

// buildPolicy applies configured field-class overrides to the default policy.
func buildPolicy(cfg *config.Config) *normalize.Policy {
	policy := normalize.DefaultPolicy()
	for path, class := range cfg.Policy {
		policy.Override(path, normalize.FieldClass(class))
	}
	return policy
}

// logClientVersions asks each endpoint for its web3_clientVersion, as triage
// context for the reports that follow. Failures are logged and ignored.
func logClientVersions(ctx context.Context, logger *slog.Logger, clients []outbound.RPCClient) {
	for _, client := range clients {
		raw, err := client.ClientVersion(ctx)
		if err != nil {
			logger.Warn("client version unavailable", "endpoint", client.Name(), "error", err)
			continue
		}
		info := compat.Detect(raw)
		logger.Info("endpoint client detected",
			"endpoint", client.Name(),
			"client", info.Name,
			"type", info.Type,
			"version", info.Version,
		)
	}
}
