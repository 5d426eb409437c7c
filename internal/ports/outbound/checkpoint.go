package outbound

import (
	"context"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// BlockOutcome is the terminal result recorded for one scanned block.
type BlockOutcome string

const (
	OutcomeAgree  BlockOutcome = "agree"
	OutcomeDiff   BlockOutcome = "diff"
	OutcomeFailed BlockOutcome = "failed"
)

// CheckpointStore persists scan progress so an interrupted scan can resume
// after the last fully-processed block. It stores nothing beyond what resume
// requires: the cursor and one outcome row per block.
type CheckpointStore interface {
	// Cursor returns the last fully-processed block number for the named
	// scan, or ok=false when the scan has no checkpoint yet.
	Cursor(ctx context.Context, scan string) (number int64, ok bool, err error)

	// Advance records a block's terminal outcome and moves the cursor.
	// Called only in ascending block order by the coordinator.
	Advance(ctx context.Context, scan string, ref entity.BlockRef, outcome BlockOutcome, mismatches int) error
}
