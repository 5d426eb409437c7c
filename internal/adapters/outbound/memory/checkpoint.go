package memory

import (
	"context"
	"sync"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Compile-time check that CheckpointStore implements outbound.CheckpointStore
var _ outbound.CheckpointStore = (*CheckpointStore)(nil)

// outcomeRecord is one block's recorded terminal outcome.
type outcomeRecord struct {
	Ref        entity.BlockRef
	Outcome    outbound.BlockOutcome
	Mismatches int
}

// CheckpointStore is an in-memory implementation of the CheckpointStore port.
type CheckpointStore struct {
	mu       sync.RWMutex
	cursors  map[string]int64
	outcomes map[string][]outcomeRecord
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		cursors:  make(map[string]int64),
		outcomes: make(map[string][]outcomeRecord),
	}
}

// Cursor returns the last fully-processed block number for the named scan.
func (s *CheckpointStore) Cursor(ctx context.Context, scan string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[scan]
	return cursor, ok, nil
}

// Advance records a block's terminal outcome and moves the cursor.
func (s *CheckpointStore) Advance(ctx context.Context, scan string, ref entity.BlockRef, outcome outbound.BlockOutcome, mismatches int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[scan] = ref.Number
	s.outcomes[scan] = append(s.outcomes[scan], outcomeRecord{Ref: ref, Outcome: outcome, Mismatches: mismatches})
	return nil
}

// OutcomeCount returns the number of recorded outcomes for a scan (for testing).
func (s *CheckpointStore) OutcomeCount(scan string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outcomes[scan])
}
