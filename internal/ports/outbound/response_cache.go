package outbound

import (
	"context"
	"encoding/json"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// Payload kinds stored in the response cache.
const (
	PayloadBlock    = "block"
	PayloadReceipts = "receipts"
)

// ResponseCache caches raw endpoint payloads keyed by endpoint, block and
// payload kind. It makes re-runs over an already-scanned range byte-stable
// and spares endpoint quotas.
type ResponseCache interface {
	// Get retrieves a cached payload. Returns nil, nil on a cache miss.
	Get(ctx context.Context, endpoint string, ref entity.BlockRef, kind string) (json.RawMessage, error)

	// Set stores a payload.
	Set(ctx context.Context, endpoint string, ref entity.BlockRef, kind string, data json.RawMessage) error

	// Close releases the underlying connection.
	Close() error
}
