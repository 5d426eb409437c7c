package outbound

import "context"

// HeadSource delivers chain-head heights in follow mode. Implementations
// may poll eth_blockNumber or subscribe to newHeads over a websocket; the
// coordinator only consumes the resulting stream.
type HeadSource interface {
	// Heads returns a channel of observed head heights. The channel closes
	// when the context is cancelled or the source fails permanently.
	Heads(ctx context.Context) (<-chan int64, error)

	// Close releases the underlying connection.
	Close() error
}
