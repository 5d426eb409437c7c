package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/archon-research/jsonrpc-scan/internal/pkg/clock"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// headPoller is the fallback head source when no websocket subscription is
// configured: it polls eth_blockNumber on one endpoint at a fixed interval
// and emits every observed height.
type headPoller struct {
	client   outbound.RPCClient
	interval time.Duration
	clk      clock.Clock
	logger   *slog.Logger
}

var _ outbound.HeadSource = (*headPoller)(nil)

func newHeadPoller(client outbound.RPCClient, interval time.Duration, clk clock.Clock, logger *slog.Logger) *headPoller {
	if interval <= 0 {
		interval = 12 * time.Second
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &headPoller{
		client:   client,
		interval: interval,
		clk:      clk,
		logger:   logger.With("component", "head_poller", "endpoint", client.Name()),
	}
}

// Heads starts the polling loop. The channel closes when ctx is done.
func (p *headPoller) Heads(ctx context.Context) (<-chan int64, error) {
	heads := make(chan int64, 1)
	go func() {
		defer close(heads)
		for {
			head, err := p.client.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warn("head poll failed", "error", err)
			} else {
				select {
				case heads <- head:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-p.clk.After(p.interval):
			}
		}
	}()
	return heads, nil
}

func (p *headPoller) Close() error { return nil }
