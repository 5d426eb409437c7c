// Package postgres provides the PostgreSQL implementation of the
// CheckpointStore port.
//
// It persists one cursor row per named scan plus one outcome row per block,
// with upsert semantics so re-running an already-scanned block is harmless.
// The schema is defined in migrations/001_initial_schema.sql and applied via
// the Migrate() method.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// Compile-time check that CheckpointStore implements outbound.CheckpointStore
var _ outbound.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is a PostgreSQL implementation of the outbound.CheckpointStore port.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Migrate creates the scan_checkpoints and block_outcomes tables if they
// don't exist.
func (s *CheckpointStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, initialSchema); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

// Cursor returns the last fully-processed block number for the named scan.
func (s *CheckpointStore) Cursor(ctx context.Context, scan string) (int64, bool, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM scan_checkpoints WHERE scan_name = $1`, scan).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	return cursor, true, nil
}

// Advance records a block's terminal outcome and moves the cursor, in one
// transaction so the cursor never points past an unrecorded block.
func (s *CheckpointStore) Advance(ctx context.Context, scan string, ref entity.BlockRef, outcome outbound.BlockOutcome, mismatches int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO block_outcomes (scan_name, block_number, block_hash, outcome, mismatches)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scan_name, block_number) DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			outcome = EXCLUDED.outcome,
			mismatches = EXCLUDED.mismatches,
			recorded_at = NOW()
	`, scan, ref.Number, ref.Hash, string(outcome), mismatches)
	if err != nil {
		return fmt.Errorf("failed to save block outcome: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_checkpoints (scan_name, cursor)
		VALUES ($1, $2)
		ON CONFLICT (scan_name) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			updated_at = NOW()
	`, scan, ref.Number)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// OutcomeCounts returns the number of recorded blocks per outcome for a scan.
func (s *CheckpointStore) OutcomeCounts(ctx context.Context, scan string) (map[outbound.BlockOutcome]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM block_outcomes
		WHERE scan_name = $1
		GROUP BY outcome
	`, scan)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[outbound.BlockOutcome]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outbound.BlockOutcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome counts: %w", err)
	}
	return counts, nil
}

// MismatchedBlocks returns the block numbers recorded with a diff outcome,
// ascending, up to limit.
func (s *CheckpointStore) MismatchedBlocks(ctx context.Context, scan string, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_number
		FROM block_outcomes
		WHERE scan_name = $1 AND outcome = $2
		ORDER BY block_number
		LIMIT $3
	`, scan, string(outbound.OutcomeDiff), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get mismatched blocks: %w", err)
	}
	defer rows.Close()

	var numbers []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan block number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mismatched blocks: %w", err)
	}
	return numbers, nil
}
