package outbound

import (
	"context"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// ReportSink is the reporting boundary. The coordinator delivers per-block
// results strictly in block order; every block yields exactly one Report or
// one Failed call.
type ReportSink interface {
	// Event delivers a scan lifecycle event (started, progress, completed,
	// aborted, cancelled).
	Event(ctx context.Context, event entity.ScanEvent) error

	// Report delivers one block's DiffReport. An empty report is a
	// meaningful "all endpoints agree" outcome, not an absence of output.
	Report(ctx context.Context, report *entity.DiffReport) error

	// Failed delivers the terminal marker for a block whose pipeline could
	// not produce a report.
	Failed(ctx context.Context, failure *entity.BlockFailure) error
}
