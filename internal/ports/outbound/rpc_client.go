package outbound

import (
	"context"
	"encoding/json"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
)

// RPCClient is one JSON-RPC endpoint under comparison. Implementations own
// their rate-limiter state and retry transient failures internally; errors
// surfaced from these methods are terminal *entity.FetchError values.
type RPCClient interface {
	// Name returns the endpoint label used in reports.
	Name() string

	// FetchBlock fetches the raw block payload for the given reference.
	// fullTx selects full transaction objects instead of hashes.
	FetchBlock(ctx context.Context, ref entity.BlockRef, fullTx bool) (json.RawMessage, error)

	// FetchReceipts fetches the raw receipt list for the given block.
	FetchReceipts(ctx context.Context, ref entity.BlockRef) (json.RawMessage, error)

	// BlockNumber fetches the endpoint's current chain head height.
	BlockNumber(ctx context.Context) (int64, error)

	// ClientVersion fetches the endpoint's web3_clientVersion string.
	ClientVersion(ctx context.Context) (string, error)
}
