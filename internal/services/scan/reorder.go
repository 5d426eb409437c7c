package scan

import (
	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// blockOutcome is the result of processing one block: either a diff report
// or a failure, never both.
type blockOutcome struct {
	ref     entity.BlockRef
	report  *entity.DiffReport
	failure *entity.BlockFailure
}

// reorderBuffer re-sequences out-of-order block completions into strict
// ascending block-number order. Capacity is bounded by the coordinator's
// in-flight limit: at most that many outcomes can be pending at once.
type reorderBuffer struct {
	next    int64
	pending map[int64]*blockOutcome
}

func newReorderBuffer(start int64) *reorderBuffer {
	return &reorderBuffer{next: start, pending: make(map[int64]*blockOutcome)}
}

// add inserts one completed block and returns the contiguous run of outcomes
// now releasable in order, possibly empty.
func (b *reorderBuffer) add(o *blockOutcome) []*blockOutcome {
	b.pending[o.ref.Number] = o

	var ready []*blockOutcome
	for {
		next, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)
		ready = append(ready, next)
		b.next++
	}
	return ready
}

// size reports how many completed blocks are waiting on a predecessor.
func (b *reorderBuffer) size() int {
	return len(b.pending)
}
