// Package scan contains the coordinator that drives a multi-endpoint block
// scan: enumerating blocks, fanning fetches out across endpoints, normalizing
// and diffing the payloads, and delivering results strictly in block order.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/pkg/clock"
	"github.com/archon-research/jsonrpc-scan/internal/ports/inbound"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
	"github.com/archon-research/jsonrpc-scan/internal/services/diff"
	"github.com/archon-research/jsonrpc-scan/internal/services/normalize"
)

// State is the coordinator lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateCancelled State = "cancelled"
)

// Config holds the scan coordinator configuration. Required dependencies
// (endpoint clients, report sink) are passed to New; optional ones live here.
type Config struct {
	// ScanName identifies the scan for checkpointing. Scans sharing a name
	// share a cursor.
	ScanName string

	// From is the first block to scan. To is the last (inclusive) in range
	// mode and ignored in follow mode.
	From int64
	To   int64

	// Follow switches from a fixed range to tracking the chain head.
	Follow bool

	// Confirmations is how far behind the head the scan stays in follow
	// mode, so re-queried blocks are past the typical reorg window.
	Confirmations int64

	// PollInterval is the eth_blockNumber polling cadence in follow mode
	// when no head subscription is configured.
	PollInterval time.Duration

	// Concurrency bounds the number of blocks in flight at once.
	Concurrency int

	// MaxConsecutiveFailures aborts the scan after this many failed blocks
	// in a row. Zero disables the abort.
	MaxConsecutiveFailures int

	// BlockTimeout bounds the fan-out fetch for one block across all
	// endpoints.
	BlockTimeout time.Duration

	// FullTransactions requests full transaction objects rather than hashes.
	FullTransactions bool

	// CompareReceipts additionally fetches and compares eth_getBlockReceipts.
	CompareReceipts bool

	// Reference names the endpoint whose values are listed first in diffs.
	// Empty means majority-first ordering.
	Reference string

	// Policy controls field classification. Nil means DefaultPolicy.
	Policy *normalize.Policy

	Checkpoint outbound.CheckpointStore    // optional
	Cache      outbound.ResponseCache      // optional
	Metrics    outbound.ScanMetricsRecorder // optional
	Heads      outbound.HeadSource         // optional; follow mode polls when nil

	Logger *slog.Logger
	Clock  clock.Clock
}

// ConfigDefaults returns a Config with sensible defaults.
func ConfigDefaults() Config {
	return Config{
		ScanName:               "scan",
		Concurrency:            4,
		MaxConsecutiveFailures: 10,
		BlockTimeout:           60 * time.Second,
		PollInterval:           12 * time.Second,
		FullTransactions:       true,
		CompareReceipts:        true,
	}
}

func (c Config) withDefaults() Config {
	defaults := ConfigDefaults()
	if c.ScanName == "" {
		c.ScanName = defaults.ScanName
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = defaults.BlockTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.Policy == nil {
		c.Policy = normalize.DefaultPolicy()
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	return c
}

// Service coordinates one scan across the configured endpoints. It implements
// inbound.Scanner.
type Service struct {
	cfg     Config
	clients []outbound.RPCClient
	sink    outbound.ReportSink
	fetcher *Fetcher
	logger  *slog.Logger
	clk     clock.Clock

	mu    sync.Mutex
	state State
}

// Compile-time check that Service implements the Scanner port.
var _ inbound.Scanner = (*Service)(nil)

// New creates a scan coordinator. At least two endpoint clients are required:
// with fewer there is nothing to compare.
func New(cfg Config, clients []outbound.RPCClient, sink outbound.ReportSink) (*Service, error) {
	if len(clients) < 2 {
		return nil, fmt.Errorf("scan requires at least 2 endpoints, got %d", len(clients))
	}
	if sink == nil {
		return nil, errors.New("report sink is required")
	}
	cfg = cfg.withDefaults()
	if !cfg.Follow && cfg.To < cfg.From {
		return nil, fmt.Errorf("invalid range: from=%d to=%d", cfg.From, cfg.To)
	}

	logger := cfg.Logger.With("component", "scan", "scan", cfg.ScanName)
	return &Service{
		cfg:     cfg,
		clients: clients,
		sink:    sink,
		fetcher: NewFetcher(clients, cfg.Cache, cfg.BlockTimeout, cfg.FullTransactions, cfg.CompareReceipts, cfg.Logger),
		logger:  logger,
		clk:     cfg.Clock,
		state:   StateIdle,
	}, nil
}

// State returns the coordinator's current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the scan to a terminal state. Results reach the sink strictly in
// ascending block order; each block yields exactly one Report or Failed call.
func (s *Service) Run(ctx context.Context) (entity.ScanEventType, error) {
	from := s.cfg.From
	if s.cfg.Checkpoint != nil {
		cursor, ok, err := s.cfg.Checkpoint.Cursor(ctx, s.cfg.ScanName)
		if err != nil {
			return entity.ScanAborted, fmt.Errorf("reading checkpoint: %w", err)
		}
		if ok && cursor >= from {
			from = cursor + 1
			s.logger.Info("resuming from checkpoint", "cursor", cursor, "from", from)
		}
	}

	if !s.cfg.Follow && from > s.cfg.To {
		s.setState(StateCompleted)
		s.emit(ctx, entity.ScanEvent{Type: entity.ScanCompleted})
		return entity.ScanCompleted, nil
	}

	s.setState(StateRunning)
	s.emit(ctx, entity.ScanEvent{Type: entity.ScanStarted})
	s.logger.Info("scan starting",
		"from", from, "to", s.cfg.To, "follow", s.cfg.Follow,
		"endpoints", len(s.clients), "concurrency", s.cfg.Concurrency)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := make(chan int64)
	outcomes := make(chan *blockOutcome)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(runCtx, blocks, outcomes)
		}()
	}

	feedErr := make(chan error, 1)
	go func() {
		defer close(blocks)
		feedErr <- s.feed(runCtx, from, blocks)
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	buf := newReorderBuffer(from)
	consecutive := 0
	var runErr error
	var abortReason string

	for outcome := range outcomes {
		if runErr != nil || ctx.Err() != nil {
			continue // draining after abort or cancellation
		}
		for _, o := range buf.add(outcome) {
			// Blocks overtaken by cancellation had their fetches cut short;
			// delivering them would report failures that never happened and
			// move the checkpoint past unscanned blocks.
			if ctx.Err() != nil {
				break
			}
			failed, err := s.deliver(ctx, o)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				runErr = err
				abortReason = err.Error()
				cancel()
				break
			}
			if failed {
				consecutive++
				if s.cfg.MaxConsecutiveFailures > 0 && consecutive >= s.cfg.MaxConsecutiveFailures {
					abortReason = fmt.Sprintf("%d consecutive block failures", consecutive)
					runErr = errors.New(abortReason)
					cancel()
					break
				}
			} else {
				consecutive = 0
			}
		}
	}

	if err := <-feedErr; err != nil && runErr == nil && ctx.Err() == nil {
		runErr = err
		abortReason = err.Error()
	}

	// The sink must still hear about the terminal state after cancellation.
	endCtx := context.WithoutCancel(ctx)
	switch {
	case runErr != nil:
		s.setState(StateAborted)
		s.emit(endCtx, entity.ScanEvent{Type: entity.ScanAborted, Reason: abortReason})
		s.logger.Error("scan aborted", "reason", abortReason)
		return entity.ScanAborted, runErr
	case ctx.Err() != nil:
		s.setState(StateCancelled)
		s.emit(endCtx, entity.ScanEvent{Type: entity.ScanCancelled})
		s.logger.Info("scan cancelled")
		return entity.ScanCancelled, ctx.Err()
	default:
		s.setState(StateCompleted)
		s.emit(endCtx, entity.ScanEvent{Type: entity.ScanCompleted})
		s.logger.Info("scan completed")
		return entity.ScanCompleted, nil
	}
}

// ScanOne runs the pipeline for a single block reference, by number or hash,
// and delivers its outcome to the sink.
func (s *Service) ScanOne(ctx context.Context, ref entity.BlockRef) (*entity.DiffReport, error) {
	o := s.processBlock(ctx, ref)
	if o.failure != nil {
		if err := s.sink.Failed(ctx, o.failure); err != nil {
			return nil, fmt.Errorf("delivering failure for block %s: %w", ref, err)
		}
		return nil, fmt.Errorf("block %s: %s", ref, o.failure.Reason)
	}
	if err := s.sink.Report(ctx, o.report); err != nil {
		return nil, fmt.Errorf("delivering report for block %s: %w", ref, err)
	}
	return o.report, nil
}

// deliver pushes one in-order outcome to the sink and checkpoint. It reports
// whether the block failed, and any delivery error (which aborts the scan:
// losing reports or checkpoint writes silently would corrupt resume).
func (s *Service) deliver(ctx context.Context, o *blockOutcome) (failed bool, err error) {
	outcome := outbound.OutcomeAgree
	mismatches := 0

	if o.failure != nil {
		outcome = outbound.OutcomeFailed
		if err := s.sink.Failed(ctx, o.failure); err != nil {
			return true, fmt.Errorf("delivering failure for block %s: %w", o.ref, err)
		}
		s.logger.Warn("block failed", "block", o.ref, "reason", o.failure.Reason)
	} else {
		mismatches = o.report.MismatchCount()
		if !o.report.Agreement() {
			outcome = outbound.OutcomeDiff
		}
		if err := s.sink.Report(ctx, o.report); err != nil {
			return false, fmt.Errorf("delivering report for block %s: %w", o.ref, err)
		}
	}

	if s.cfg.Checkpoint != nil {
		if err := s.cfg.Checkpoint.Advance(ctx, s.cfg.ScanName, o.ref, outcome, mismatches); err != nil {
			return o.failure != nil, fmt.Errorf("advancing checkpoint at block %s: %w", o.ref, err)
		}
	}

	ref := o.ref
	s.emit(ctx, entity.ScanEvent{Type: entity.ScanProgress, Block: &ref})
	return o.failure != nil, nil
}

func (s *Service) worker(ctx context.Context, blocks <-chan int64, outcomes chan<- *blockOutcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case num, ok := <-blocks:
			if !ok {
				return
			}
			o := s.processBlock(ctx, entity.NumberRef(num))
			select {
			case outcomes <- o:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processBlock runs the full pipeline for one block: fan-out fetch, per
// endpoint normalization, then cross-endpoint diff.
func (s *Service) processBlock(ctx context.Context, ref entity.BlockRef) *blockOutcome {
	start := s.clk.Now()
	raw := s.fetcher.FetchAll(ctx, ref)

	unavailable := make(map[string]string)
	normalizedBlocks := make([]*entity.NormalizedBlock, 0, len(raw))
	for _, client := range s.clients {
		r := raw[client.Name()]
		if !r.Success() {
			unavailable[r.Endpoint] = r.FailureDetail()
			s.recordFetchErrors(ctx, r)
			continue
		}
		nb, err := normalize.Block(r, s.cfg.Policy)
		if err != nil {
			unavailable[r.Endpoint] = err.Error()
			s.cfg.Metrics.RecordFetchError(ctx, r.Endpoint, "malformed")
			s.logger.Warn("malformed payload", "endpoint", r.Endpoint, "block", ref, "error", err)
			continue
		}
		normalizedBlocks = append(normalizedBlocks, nb)
	}

	if len(normalizedBlocks) < 2 {
		s.cfg.Metrics.RecordBlockFailed(ctx)
		return &blockOutcome{ref: ref, failure: &entity.BlockFailure{
			Ref:    ref,
			Reason: "fewer than two endpoints produced comparable payloads",
			Errors: unavailable,
		}}
	}

	report := diff.Compute(ref, normalizedBlocks, s.cfg.Reference, s.cfg.Policy)
	report.Unavailable = unavailable

	s.cfg.Metrics.RecordBlockScanned(ctx, s.clk.Now().Sub(start), report.Agreement())
	if n := report.MismatchCount(); n > 0 {
		s.cfg.Metrics.RecordFieldDiffs(ctx, n)
	}
	return &blockOutcome{ref: ref, report: report}
}

func (s *Service) recordFetchErrors(ctx context.Context, r *entity.RawBlockResult) {
	if r.BlockErr != nil {
		s.cfg.Metrics.RecordFetchError(ctx, r.Endpoint, string(r.BlockErr.Kind))
	}
	if r.ReceiptsErr != nil {
		s.cfg.Metrics.RecordFetchError(ctx, r.Endpoint, string(r.ReceiptsErr.Kind))
	}
}

// feed enumerates block numbers onto the work channel in ascending order.
func (s *Service) feed(ctx context.Context, from int64, blocks chan<- int64) error {
	if !s.cfg.Follow {
		return s.feedRange(ctx, from, blocks)
	}
	return s.feedFollow(ctx, from, blocks)
}

func (s *Service) feedRange(ctx context.Context, from int64, blocks chan<- int64) error {
	for n := from; n <= s.cfg.To; n++ {
		select {
		case blocks <- n:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// feedFollow dispatches blocks up to head minus the confirmation depth as
// new heads arrive. It runs until the context is cancelled or the head
// source closes.
func (s *Service) feedFollow(ctx context.Context, from int64, blocks chan<- int64) error {
	source := s.cfg.Heads
	if source == nil {
		poller := newHeadPoller(s.clients[0], s.cfg.PollInterval, s.clk, s.logger)
		defer poller.Close() //nolint:errcheck
		source = poller
	}

	heads, err := source.Heads(ctx)
	if err != nil {
		return fmt.Errorf("starting head source: %w", err)
	}

	next := from
	for {
		select {
		case <-ctx.Done():
			return nil
		case head, ok := <-heads:
			if !ok {
				return nil
			}
			target := head - s.cfg.Confirmations
			for ; next <= target; next++ {
				select {
				case blocks <- next:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (s *Service) emit(ctx context.Context, event entity.ScanEvent) {
	if err := s.sink.Event(ctx, event); err != nil {
		s.logger.Warn("event delivery failed", "type", event.Type, "error", err)
	}
}

// nopMetrics is the default recorder when no metrics backend is wired.
type nopMetrics struct{}

var _ outbound.ScanMetricsRecorder = nopMetrics{}

func (nopMetrics) RecordBlockScanned(context.Context, time.Duration, bool) {}
func (nopMetrics) RecordFieldDiffs(context.Context, int)                   {}
func (nopMetrics) RecordFetchError(context.Context, string, string)        {}
func (nopMetrics) RecordBlockFailed(context.Context)                       {}
