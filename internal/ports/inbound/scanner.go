// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// Scanner is the use case exposed to inbound adapters (CLI, service mains):
// drive one scan to its terminal state. Run blocks until the scan completes,
// aborts, or the context is cancelled, and returns the terminal event type.
type Scanner interface {
	Run(ctx context.Context) (entity.ScanEventType, error)
}
