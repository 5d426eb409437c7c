package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// fakeClient serves canned block payloads keyed by block number.
type fakeClient struct {
	name   string
	blocks map[int64]string
	byHash map[string]string
	fails  map[int64]*entity.FetchError
	head   int64
	delay  func(number int64) time.Duration

	mu    sync.Mutex
	calls int
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) FetchBlock(ctx context.Context, ref entity.BlockRef, fullTx bool) (json.RawMessage, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.delay != nil {
		select {
		case <-time.After(c.delay(ref.Number)):
		case <-ctx.Done():
			return nil, &entity.FetchError{Kind: entity.FetchTimeout, Message: ctx.Err().Error()}
		}
	}
	if ref.ByHash() {
		if b, ok := c.byHash[ref.Hash]; ok {
			return json.RawMessage(b), nil
		}
		return nil, &entity.FetchError{Kind: entity.FetchNotFound, Message: "null result"}
	}
	if fe, ok := c.fails[ref.Number]; ok {
		return nil, fe
	}
	if b, ok := c.blocks[ref.Number]; ok {
		return json.RawMessage(b), nil
	}
	return nil, &entity.FetchError{Kind: entity.FetchNotFound, Message: "null result"}
}

func (c *fakeClient) FetchReceipts(ctx context.Context, ref entity.BlockRef) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (c *fakeClient) BlockNumber(ctx context.Context) (int64, error) { return c.head, nil }

func (c *fakeClient) ClientVersion(ctx context.Context) (string, error) {
	return "Geth/v1.13.0-stable/linux-amd64/go1.21.0", nil
}

// fakeSink records everything delivered, in order.
type fakeSink struct {
	mu       sync.Mutex
	events   []entity.ScanEvent
	reports  []*entity.DiffReport
	failures []*entity.BlockFailure
}

func (s *fakeSink) Event(ctx context.Context, event entity.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Report(ctx context.Context, report *entity.DiffReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *fakeSink) Failed(ctx context.Context, failure *entity.BlockFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	return nil
}

func (s *fakeSink) reportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

// fakeCheckpoint is an in-memory CheckpointStore that records Advance order.
type fakeCheckpoint struct {
	mu       sync.Mutex
	cursors  map[string]int64
	advanced []int64
	outcomes map[int64]outbound.BlockOutcome
}

func newFakeCheckpoint() *fakeCheckpoint {
	return &fakeCheckpoint{
		cursors:  make(map[string]int64),
		outcomes: make(map[int64]outbound.BlockOutcome),
	}
}

func (c *fakeCheckpoint) Cursor(ctx context.Context, scan string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursor, ok := c.cursors[scan]
	return cursor, ok, nil
}

func (c *fakeCheckpoint) Advance(ctx context.Context, scan string, ref entity.BlockRef, outcome outbound.BlockOutcome, mismatches int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[scan] = ref.Number
	c.advanced = append(c.advanced, ref.Number)
	c.outcomes[ref.Number] = outcome
	return nil
}

type fakeHeads struct{ ch chan int64 }

func (h *fakeHeads) Heads(ctx context.Context) (<-chan int64, error) { return h.ch, nil }
func (h *fakeHeads) Close() error                                    { return nil }

func blockAt(number int64, gasUsed string) string {
	return fmt.Sprintf(`{
		"number": "0x%x", "hash": "0xabc%x", "parentHash": "0xabc%x",
		"stateRoot": "0xdef", "gasUsed": "%s", "gasLimit": "0x1c9c380",
		"timestamp": "0x65f0e000"
	}`, number, number, number-1, gasUsed)
}

func clientWithRange(name string, from, to int64) *fakeClient {
	blocks := make(map[int64]string)
	for n := from; n <= to; n++ {
		blocks[n] = blockAt(n, "0x5208")
	}
	return &fakeClient{name: name, blocks: blocks}
}

func rangeConfig(from, to int64) Config {
	cfg := ConfigDefaults()
	cfg.From = from
	cfg.To = to
	cfg.CompareReceipts = false
	return cfg
}

func TestNew_Validation(t *testing.T) {
	sink := &fakeSink{}
	if _, err := New(rangeConfig(0, 10), []outbound.RPCClient{clientWithRange("A", 0, 10)}, sink); err == nil {
		t.Error("expected error with a single endpoint")
	}
	clients := []outbound.RPCClient{clientWithRange("A", 0, 10), clientWithRange("B", 0, 10)}
	if _, err := New(rangeConfig(10, 5), clients, sink); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := New(rangeConfig(0, 10), clients, nil); err == nil {
		t.Error("expected error for nil sink")
	}
}

func TestRun_RangeEmitsInOrder(t *testing.T) {
	// Uneven per-block delays force out-of-order completion; the reorder
	// buffer must still deliver strictly ascending reports.
	a := clientWithRange("A", 100, 119)
	a.delay = func(n int64) time.Duration { return time.Duration((n%5)*2) * time.Millisecond }
	b := clientWithRange("B", 100, 119)

	sink := &fakeSink{}
	checkpoint := newFakeCheckpoint()
	cfg := rangeConfig(100, 119)
	cfg.Checkpoint = checkpoint

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	terminal, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if terminal != entity.ScanCompleted {
		t.Fatalf("expected completed, got %s", terminal)
	}
	if svc.State() != StateCompleted {
		t.Errorf("expected state completed, got %s", svc.State())
	}

	if len(sink.reports) != 20 {
		t.Fatalf("expected 20 reports, got %d", len(sink.reports))
	}
	for i, report := range sink.reports {
		if want := int64(100 + i); report.Ref.Number != want {
			t.Fatalf("report %d out of order: got block %d, want %d", i, report.Ref.Number, want)
		}
		if !report.Agreement() {
			t.Errorf("block %d: expected agreement", report.Ref.Number)
		}
	}

	for i, n := range checkpoint.advanced {
		if want := int64(100 + i); n != want {
			t.Fatalf("checkpoint advanced out of order: got %d, want %d", n, want)
		}
	}

	if sink.events[0].Type != entity.ScanStarted {
		t.Errorf("expected first event started, got %s", sink.events[0].Type)
	}
	if last := sink.events[len(sink.events)-1]; last.Type != entity.ScanCompleted {
		t.Errorf("expected last event completed, got %s", last.Type)
	}
}

func TestRun_FaultContainment(t *testing.T) {
	// C fails one block; A and B still produce a report for it, with C
	// listed as unavailable, and neighboring blocks are untouched.
	a := clientWithRange("A", 100, 104)
	b := clientWithRange("B", 100, 104)
	c := clientWithRange("C", 100, 104)
	c.fails = map[int64]*entity.FetchError{
		102: {Kind: entity.FetchTransport, Message: "connection reset"},
	}

	sink := &fakeSink{}
	svc, err := New(rangeConfig(100, 104), []outbound.RPCClient{a, b, c}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	terminal, err := svc.Run(context.Background())
	if err != nil || terminal != entity.ScanCompleted {
		t.Fatalf("expected clean completion, got %s err=%v", terminal, err)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("expected no block failures, got %+v", sink.failures)
	}
	if len(sink.reports) != 5 {
		t.Fatalf("expected 5 reports, got %d", len(sink.reports))
	}

	report := sink.reports[2]
	if report.Ref.Number != 102 {
		t.Fatalf("expected block 102, got %d", report.Ref.Number)
	}
	if len(report.Endpoints) != 2 {
		t.Errorf("expected 2 comparable endpoints, got %v", report.Endpoints)
	}
	if _, ok := report.Unavailable["C"]; !ok {
		t.Errorf("expected C marked unavailable, got %v", report.Unavailable)
	}

	neighbor := sink.reports[1]
	if len(neighbor.Endpoints) != 3 || len(neighbor.Unavailable) != 0 {
		t.Errorf("neighboring block affected: %+v", neighbor)
	}
}

func TestRun_BlockFailureWhenTooFewPayloads(t *testing.T) {
	a := clientWithRange("A", 100, 102)
	b := clientWithRange("B", 100, 102)
	b.fails = map[int64]*entity.FetchError{
		101: {Kind: entity.FetchTimeout, Message: "deadline exceeded"},
	}

	sink := &fakeSink{}
	checkpoint := newFakeCheckpoint()
	cfg := rangeConfig(100, 102)
	cfg.Checkpoint = checkpoint

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	terminal, err := svc.Run(context.Background())
	if err != nil || terminal != entity.ScanCompleted {
		t.Fatalf("expected completion, got %s err=%v", terminal, err)
	}

	if len(sink.failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(sink.failures))
	}
	failure := sink.failures[0]
	if failure.Ref.Number != 101 {
		t.Errorf("expected failed block 101, got %d", failure.Ref.Number)
	}
	if _, ok := failure.Errors["B"]; !ok {
		t.Errorf("expected B in failure errors, got %v", failure.Errors)
	}
	if len(sink.reports) != 2 {
		t.Errorf("expected 2 reports, got %d", len(sink.reports))
	}
	if checkpoint.outcomes[101] != outbound.OutcomeFailed {
		t.Errorf("expected failed outcome for 101, got %s", checkpoint.outcomes[101])
	}
	// The cursor moved past the failed block: failures are terminal.
	if cursor := checkpoint.cursors["scan"]; cursor != 102 {
		t.Errorf("expected cursor 102, got %d", cursor)
	}
}

func TestRun_AbortsAfterConsecutiveFailures(t *testing.T) {
	a := &fakeClient{name: "A"} // knows no blocks: every fetch is not_found
	b := &fakeClient{name: "B"}

	sink := &fakeSink{}
	cfg := rangeConfig(100, 199)
	cfg.Concurrency = 1
	cfg.MaxConsecutiveFailures = 3

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	terminal, err := svc.Run(context.Background())
	if terminal != entity.ScanAborted {
		t.Fatalf("expected aborted, got %s", terminal)
	}
	if err == nil {
		t.Fatal("expected abort error")
	}
	if svc.State() != StateAborted {
		t.Errorf("expected state aborted, got %s", svc.State())
	}

	if len(sink.failures) != 3 {
		t.Fatalf("expected exactly 3 failures before abort, got %d", len(sink.failures))
	}
	for i, f := range sink.failures {
		if want := int64(100 + i); f.Ref.Number != want {
			t.Errorf("failure %d: got block %d, want %d", i, f.Ref.Number, want)
		}
	}

	last := sink.events[len(sink.events)-1]
	if last.Type != entity.ScanAborted || last.Reason == "" {
		t.Errorf("expected aborted event with reason, got %+v", last)
	}
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	a := clientWithRange("A", 100, 109)
	b := clientWithRange("B", 100, 109)

	checkpoint := newFakeCheckpoint()
	checkpoint.cursors["scan"] = 104

	sink := &fakeSink{}
	cfg := rangeConfig(100, 109)
	cfg.Checkpoint = checkpoint

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.reports) != 5 {
		t.Fatalf("expected 5 reports after resume, got %d", len(sink.reports))
	}
	if first := sink.reports[0].Ref.Number; first != 105 {
		t.Errorf("expected resume at block 105, got %d", first)
	}
}

func TestRun_CompletedWhenCheckpointPastRange(t *testing.T) {
	checkpoint := newFakeCheckpoint()
	checkpoint.cursors["scan"] = 109

	sink := &fakeSink{}
	cfg := rangeConfig(100, 109)
	cfg.Checkpoint = checkpoint

	clients := []outbound.RPCClient{clientWithRange("A", 100, 109), clientWithRange("B", 100, 109)}
	svc, err := New(cfg, clients, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	terminal, err := svc.Run(context.Background())
	if err != nil || terminal != entity.ScanCompleted {
		t.Fatalf("expected immediate completion, got %s err=%v", terminal, err)
	}
	if len(sink.reports) != 0 {
		t.Errorf("expected no reports, got %d", len(sink.reports))
	}
}

func TestRun_ValueMismatchRecordedAsDiff(t *testing.T) {
	a := clientWithRange("A", 100, 102)
	b := clientWithRange("B", 100, 102)
	b.blocks[101] = blockAt(101, "0x5209")

	sink := &fakeSink{}
	checkpoint := newFakeCheckpoint()
	cfg := rangeConfig(100, 102)
	cfg.Checkpoint = checkpoint

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	report := sink.reports[1]
	if report.Agreement() {
		t.Fatal("expected disagreement on block 101")
	}
	if report.MismatchCount() != 1 {
		t.Errorf("expected 1 mismatch, got %d", report.MismatchCount())
	}
	if checkpoint.outcomes[101] != outbound.OutcomeDiff {
		t.Errorf("expected diff outcome, got %s", checkpoint.outcomes[101])
	}
	if checkpoint.outcomes[100] != outbound.OutcomeAgree {
		t.Errorf("expected agree outcome, got %s", checkpoint.outcomes[100])
	}
}

func TestRun_Cancelled(t *testing.T) {
	a := clientWithRange("A", 0, 2000)
	a.delay = func(int64) time.Duration { return 5 * time.Millisecond }
	b := clientWithRange("B", 0, 2000)

	sink := &fakeSink{}
	svc, err := New(rangeConfig(0, 2000), []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	terminal, err := svc.Run(ctx)
	if terminal != entity.ScanCancelled {
		t.Fatalf("expected cancelled, got %s", terminal)
	}
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if last := sink.events[len(sink.events)-1]; last.Type != entity.ScanCancelled {
		t.Errorf("expected cancelled event last, got %s", last.Type)
	}
}

func TestRun_CancelDiscardsInFlightBlocks(t *testing.T) {
	// Blocks whose fetches were cut short by cancellation must not surface
	// as failures or move the checkpoint: a resumed scan has to revisit them.
	a := clientWithRange("A", 0, 2000)
	a.delay = func(int64) time.Duration { return 5 * time.Millisecond }
	b := clientWithRange("B", 0, 2000)

	sink := &fakeSink{}
	checkpoint := newFakeCheckpoint()
	cfg := rangeConfig(0, 2000)
	cfg.Checkpoint = checkpoint

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	terminal, err := svc.Run(ctx)
	if terminal != entity.ScanCancelled || err != context.Canceled {
		t.Fatalf("expected cancelled, got %s err=%v", terminal, err)
	}

	if len(sink.failures) != 0 {
		t.Fatalf("expected no failures after cancellation, got %+v", sink.failures)
	}
	for n, outcome := range checkpoint.outcomes {
		if outcome == outbound.OutcomeFailed {
			t.Errorf("block %d checkpointed as failed after cancellation", n)
		}
	}
	for i, report := range sink.reports {
		if report.Ref.Number != int64(i) {
			t.Fatalf("report %d out of order: got block %d", i, report.Ref.Number)
		}
	}
	if len(sink.reports) > 0 {
		last := sink.reports[len(sink.reports)-1].Ref.Number
		if cursor := checkpoint.cursors["scan"]; cursor != last {
			t.Errorf("cursor %d does not match last delivered block %d", cursor, last)
		}
	}
}

// cancellingSink cancels the scan while a report is being delivered and
// answers with the context error, as any context-honoring sink would.
type cancellingSink struct {
	fakeSink
	cancel context.CancelFunc
	at     int64
}

func (s *cancellingSink) Report(ctx context.Context, report *entity.DiffReport) error {
	if report.Ref.Number == s.at {
		s.cancel()
		return ctx.Err()
	}
	return s.fakeSink.Report(ctx, report)
}

func TestRun_CancelDuringDeliveryStaysCancelled(t *testing.T) {
	a := clientWithRange("A", 100, 120)
	b := clientWithRange("B", 100, 120)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancellingSink{cancel: cancel, at: 105}
	checkpoint := newFakeCheckpoint()
	cfg := rangeConfig(100, 120)
	cfg.Checkpoint = checkpoint

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	terminal, err := svc.Run(ctx)
	if terminal != entity.ScanCancelled {
		t.Fatalf("expected cancelled, got %s err=%v", terminal, err)
	}
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if svc.State() != StateCancelled {
		t.Errorf("expected state cancelled, got %s", svc.State())
	}
	if last := sink.events[len(sink.events)-1]; last.Type != entity.ScanCancelled {
		t.Errorf("expected cancelled event last, got %s", last.Type)
	}
	if cursor := checkpoint.cursors["scan"]; cursor >= 105 {
		t.Errorf("cursor advanced past undelivered block: %d", cursor)
	}
}

func TestRun_FollowRespectsConfirmationDepth(t *testing.T) {
	a := clientWithRange("A", 100, 110)
	b := clientWithRange("B", 100, 110)
	heads := &fakeHeads{ch: make(chan int64, 4)}

	sink := &fakeSink{}
	cfg := ConfigDefaults()
	cfg.From = 100
	cfg.Follow = true
	cfg.Confirmations = 2
	cfg.CompareReceipts = false
	cfg.Heads = heads

	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan entity.ScanEventType, 1)
	go func() {
		terminal, _ := svc.Run(ctx)
		done <- terminal
	}()

	heads.ch <- 105 // confirmed target: 103
	waitFor(t, func() bool { return sink.reportCount() == 4 })

	heads.ch <- 106 // one more confirmed block
	waitFor(t, func() bool { return sink.reportCount() == 5 })

	cancel()
	if terminal := <-done; terminal != entity.ScanCancelled {
		t.Fatalf("expected cancelled, got %s", terminal)
	}

	for i, report := range sink.reports {
		if want := int64(100 + i); report.Ref.Number != want {
			t.Errorf("report %d: got block %d, want %d", i, report.Ref.Number, want)
		}
	}
}

func TestScanOne_ByHash(t *testing.T) {
	hash := "0x00aa"
	a := &fakeClient{name: "A", byHash: map[string]string{hash: blockAt(7, "0x5208")}}
	b := &fakeClient{name: "B", byHash: map[string]string{hash: blockAt(7, "0x5208")}}

	sink := &fakeSink{}
	cfg := ConfigDefaults()
	cfg.CompareReceipts = false
	svc, err := New(cfg, []outbound.RPCClient{a, b}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := svc.ScanOne(context.Background(), entity.HashRef(hash))
	if err != nil {
		t.Fatalf("ScanOne: %v", err)
	}
	if !report.Agreement() {
		t.Error("expected agreement")
	}
	if len(sink.reports) != 1 {
		t.Errorf("expected 1 report delivered, got %d", len(sink.reports))
	}
}

func TestReorderBuffer(t *testing.T) {
	buf := newReorderBuffer(10)

	if ready := buf.add(&blockOutcome{ref: entity.NumberRef(12)}); len(ready) != 0 {
		t.Fatalf("expected nothing releasable, got %d", len(ready))
	}
	if ready := buf.add(&blockOutcome{ref: entity.NumberRef(11)}); len(ready) != 0 {
		t.Fatalf("expected nothing releasable, got %d", len(ready))
	}
	if buf.size() != 2 {
		t.Errorf("expected 2 pending, got %d", buf.size())
	}

	ready := buf.add(&blockOutcome{ref: entity.NumberRef(10)})
	if len(ready) != 3 {
		t.Fatalf("expected 3 releasable, got %d", len(ready))
	}
	for i, o := range ready {
		if want := int64(10 + i); o.ref.Number != want {
			t.Errorf("position %d: got %d, want %d", i, o.ref.Number, want)
		}
	}
	if buf.size() != 0 {
		t.Errorf("expected empty buffer, got %d", buf.size())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
