package scan

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Fetcher queries every configured endpoint for one block concurrently.
// Each endpoint's outcome is captured independently; one endpoint failing
// never blocks or invalidates another's result.
type Fetcher struct {
	clients  []outbound.RPCClient
	cache    outbound.ResponseCache // optional
	timeout  time.Duration          // overall per-block bound
	fullTx   bool
	receipts bool
	logger   *slog.Logger
}

// NewFetcher creates a block fetcher over the given endpoint clients.
// cache may be nil.
func NewFetcher(clients []outbound.RPCClient, cache outbound.ResponseCache, timeout time.Duration, fullTx, receipts bool, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		clients:  clients,
		cache:    cache,
		timeout:  timeout,
		fullTx:   fullTx,
		receipts: receipts,
		logger:   logger.With("component", "fetcher"),
	}
}

// FetchAll queries all endpoints in parallel and returns exactly one
// RawBlockResult per configured endpoint. Endpoints still pending when the
// per-block bound expires come back as timeout failures.
func (f *Fetcher) FetchAll(ctx context.Context, ref entity.BlockRef) map[string]*entity.RawBlockResult {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	results := make([]*entity.RawBlockResult, len(f.clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, client := range f.clients {
		g.Go(func() error {
			results[i] = f.fetchOne(gctx, client, ref)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	out := make(map[string]*entity.RawBlockResult, len(results))
	for _, r := range results {
		out[r.Endpoint] = r
	}
	return out
}

// fetchOne queries one endpoint for the block and (optionally) receipts,
// consulting the response cache first.
func (f *Fetcher) fetchOne(ctx context.Context, client outbound.RPCClient, ref entity.BlockRef) *entity.RawBlockResult {
	result := &entity.RawBlockResult{Endpoint: client.Name(), Ref: ref}

	result.Block, result.BlockErr = f.payload(ctx, client, ref, outbound.PayloadBlock)
	if f.receipts {
		result.Receipts, result.ReceiptsErr = f.payload(ctx, client, ref, outbound.PayloadReceipts)
	}
	return result
}

// payload fetches one payload kind through the cache.
func (f *Fetcher) payload(ctx context.Context, client outbound.RPCClient, ref entity.BlockRef, kind string) (json.RawMessage, *entity.FetchError) {
	if f.cache != nil {
		cached, err := f.cache.Get(ctx, client.Name(), ref, kind)
		if err != nil {
			f.logger.Warn("cache read failed", "endpoint", client.Name(), "block", ref, "kind", kind, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	var data json.RawMessage
	var err error
	switch kind {
	case outbound.PayloadBlock:
		data, err = client.FetchBlock(ctx, ref, f.fullTx)
	case outbound.PayloadReceipts:
		data, err = client.FetchReceipts(ctx, ref)
	}
	if err != nil {
		fe := entity.AsFetchError(err)
		// The per-block bound expiring shows up as a cancelled call.
		if ctx.Err() == context.DeadlineExceeded && fe.Kind != entity.FetchTimeout {
			fe = &entity.FetchError{Kind: entity.FetchTimeout, Message: "per-block timeout exceeded"}
		}
		return nil, fe
	}

	if f.cache != nil {
		if cacheErr := f.cache.Set(ctx, client.Name(), ref, kind, data); cacheErr != nil {
			f.logger.Warn("cache write failed", "endpoint", client.Name(), "block", ref, "kind", kind, "error", cacheErr)
		}
	}
	return data, nil
}
