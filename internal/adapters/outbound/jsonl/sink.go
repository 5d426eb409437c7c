// Package jsonl implements the ReportSink port as newline-delimited JSON.
//
// Every delivery becomes one self-describing line, so the output stream can
// be tailed, grepped, or loaded into analysis tooling without a schema
// registry. Lines are written under a mutex; the coordinator delivers in
// block order and that order is preserved on disk.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Compile-time check that Sink implements outbound.ReportSink
var _ outbound.ReportSink = (*Sink)(nil)

// line is the envelope written for each delivery.
type line struct {
	Type    string               `json:"type"` // "event", "report" or "failure"
	Time    time.Time            `json:"time"`
	Event   *entity.ScanEvent    `json:"event,omitempty"`
	Report  *entity.DiffReport   `json:"report,omitempty"`
	Failure *entity.BlockFailure `json:"failure,omitempty"`
}

// Sink writes scan output as JSON lines to an io.Writer.
type Sink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	now    func() time.Time
}

// NewSink creates a sink writing to w. The caller owns w's lifecycle.
func NewSink(w io.Writer) *Sink {
	return &Sink{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileSink creates a sink appending to the file at path, creating it if
// needed. Close releases the file.
func NewFileSink(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	s := NewSink(f)
	s.closer = f
	return s, nil
}

// Event writes a scan lifecycle event line.
func (s *Sink) Event(ctx context.Context, event entity.ScanEvent) error {
	return s.write(line{Type: "event", Event: &event})
}

// Report writes one block's diff report line.
func (s *Sink) Report(ctx context.Context, report *entity.DiffReport) error {
	return s.write(line{Type: "report", Report: report})
}

// Failed writes one block failure line.
func (s *Sink) Failed(ctx context.Context, failure *entity.BlockFailure) error {
	return s.write(line{Type: "failure", Failure: failure})
}

// Close closes the underlying file, if this sink owns one.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Sink) write(l line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Time = s.now().UTC()
	if err := s.enc.Encode(l); err != nil {
		return fmt.Errorf("failed to write report line: %w", err)
	}
	return nil
}
