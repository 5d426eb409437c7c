package outbound

import (
	"context"
	"time"
)

// ScanMetricsRecorder records domain-level scan metrics. Implementations
// must be safe for concurrent use; a nil-safe no-op is provided by the
// scan service for hosts that don't wire metrics.
type ScanMetricsRecorder interface {
	// RecordBlockScanned records one completed block pipeline with its
	// wall-clock duration and whether all endpoints agreed.
	RecordBlockScanned(ctx context.Context, duration time.Duration, agreement bool)

	// RecordFieldDiffs records the number of mismatching fields found in
	// one block.
	RecordFieldDiffs(ctx context.Context, count int)

	// RecordFetchError records one terminal endpoint failure by kind.
	RecordFetchError(ctx context.Context, endpoint, kind string)

	// RecordBlockFailed records a block that yielded a Failed marker.
	RecordBlockFailed(ctx context.Context)
}
