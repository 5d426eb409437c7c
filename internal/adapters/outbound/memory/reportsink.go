package memory

import (
	"context"
	"sync"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Compile-time check that ReportSink implements outbound.ReportSink
var _ outbound.ReportSink = (*ReportSink)(nil)

// ReportSink collects scan output in memory, preserving delivery order.
type ReportSink struct {
	mu       sync.RWMutex
	events   []entity.ScanEvent
	reports  []*entity.DiffReport
	failures []*entity.BlockFailure
}

// NewReportSink creates a new in-memory report sink.
func NewReportSink() *ReportSink {
	return &ReportSink{}
}

// Event records a scan lifecycle event.
func (s *ReportSink) Event(ctx context.Context, event entity.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Report records one block's diff report.
func (s *ReportSink) Report(ctx context.Context, report *entity.DiffReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

// Failed records one block failure.
func (s *ReportSink) Failed(ctx context.Context, failure *entity.BlockFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	return nil
}

// Events returns a copy of the recorded events.
func (s *ReportSink) Events() []entity.ScanEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.ScanEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Reports returns a copy of the recorded reports.
func (s *ReportSink) Reports() []*entity.DiffReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.DiffReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// Failures returns a copy of the recorded failures.
func (s *ReportSink) Failures() []*entity.BlockFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.BlockFailure, len(s.failures))
	copy(out, s.failures)
	return out
}
