// Package rpcnode provides the JSON-RPC endpoint client used by the scan
// engine. Each client owns a token-bucket rate limiter and retries transient
// failures with exponential backoff; errors it surfaces are terminal
// *entity.FetchError values classified by kind.
package rpcnode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
	"github.com/archon-research/jsonrpc-scan/internal/pkg/hexutil"
	"github.com/archon-research/jsonrpc-scan/internal/pkg/retry"
)

// Compile-time check that Client implements outbound.RPCClient
var _ outbound.RPCClient = (*Client)(nil)

// Client is an HTTP JSON-RPC client for one endpoint under comparison.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	reqID      atomic.Int64
}

// NewClient creates a new endpoint client.
func NewClient(config Config) (*Client, error) {
	if config.Name == "" {
		return nil, errors.New("endpoint name is required")
	}
	if config.HTTPURL == "" {
		return nil, errors.New("HTTPURL is required")
	}
	config = config.withDefaults()

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(config.RateLimit, config.RateBurst),
		logger:     config.Logger.With("component", "rpcnode", "endpoint", config.Name),
	}, nil
}

// Name returns the endpoint label used in reports.
func (c *Client) Name() string {
	return c.config.Name
}

// FetchBlock fetches the raw block payload by number or hash.
func (c *Client) FetchBlock(ctx context.Context, ref entity.BlockRef, fullTx bool) (json.RawMessage, error) {
	method := "eth_getBlockByNumber"
	param := interface{}(hexutil.EncodeQuantity(ref.Number))
	if ref.ByHash() {
		method = "eth_getBlockByHash"
		param = ref.Hash
	}

	result, err := c.call(ctx, method, []interface{}{param, fullTx})
	if err != nil {
		return nil, err
	}
	if isNullResult(result) {
		return nil, &entity.FetchError{Kind: entity.FetchNotFound, Message: fmt.Sprintf("block %s not found", ref)}
	}
	return result, nil
}

// FetchReceipts fetches the raw receipt list for a block.
func (c *Client) FetchReceipts(ctx context.Context, ref entity.BlockRef) (json.RawMessage, error) {
	param := interface{}(hexutil.EncodeQuantity(ref.Number))
	if ref.ByHash() {
		param = ref.Hash
	}

	result, err := c.call(ctx, "eth_getBlockReceipts", []interface{}{param})
	if err != nil {
		return nil, err
	}
	if isNullResult(result) {
		return nil, &entity.FetchError{Kind: entity.FetchNotFound, Message: fmt.Sprintf("receipts for block %s not found", ref)}
	}
	return result, nil
}

// BlockNumber fetches the endpoint's current head height.
func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, err
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, &entity.FetchError{Kind: entity.FetchProtocol, Message: fmt.Sprintf("unparseable block number: %v", err)}
	}
	num, err := hexutil.ParseInt64(hexNum)
	if err != nil {
		return 0, &entity.FetchError{Kind: entity.FetchProtocol, Message: fmt.Sprintf("unparseable block number %q: %v", hexNum, err)}
	}
	return num, nil
}

// ClientVersion fetches the endpoint's web3_clientVersion string.
func (c *Client) ClientVersion(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "web3_clientVersion", []interface{}{})
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal(result, &version); err != nil {
		return "", &entity.FetchError{Kind: entity.FetchProtocol, Message: fmt.Sprintf("unparseable client version: %v", err)}
	}
	return version, nil
}

// call issues one JSON-RPC request with rate limiting and retry. The error
// returned after retries are exhausted is always a *entity.FetchError.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}

	retryCfg := retry.Config{
		MaxRetries:     c.config.MaxRetries,
		InitialBackoff: c.config.InitialBackoff,
		MaxBackoff:     c.config.MaxBackoff,
		BackoffFactor:  c.config.BackoffFactor,
		Jitter:         true,
		Clock:          c.config.Clock,
	}

	isRetryable := func(err error) bool {
		return entity.AsFetchError(err).Retryable()
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"method", method,
			"attempt", attempt,
			"maxRetries", c.config.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	result, err := retry.Do(ctx, retryCfg, isRetryable, onRetry, func() (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.classify(err)
		}
		return c.doSingleCall(ctx, req)
	})
	if err != nil {
		return nil, entity.AsFetchError(err)
	}
	return result, nil
}

// doSingleCall performs one HTTP round trip and classifies every failure.
func (c *Client) doSingleCall(ctx context.Context, req jsonRPCRequest) (json.RawMessage, error) {
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, &entity.FetchError{Kind: entity.FetchProtocol, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.HTTPURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &entity.FetchError{Kind: entity.FetchTransport, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range c.config.Headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classify(err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &entity.FetchError{Kind: entity.FetchRateLimited, Code: httpResp.StatusCode, Message: "endpoint rate limited"}
	case httpResp.StatusCode >= 400:
		return nil, &entity.FetchError{Kind: entity.FetchProtocol, Code: httpResp.StatusCode, Message: fmt.Sprintf("HTTP %d", httpResp.StatusCode)}
	}

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.classify(err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return nil, &entity.FetchError{Kind: entity.FetchProtocol, Message: fmt.Sprintf("unparseable response: %v", err)}
	}
	if rpcResp.Error != nil {
		return nil, &entity.FetchError{Kind: entity.FetchProtocol, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	return rpcResp.Result, nil
}

// classify maps low-level transport errors onto the FetchError taxonomy.
func (c *Client) classify(err error) *entity.FetchError {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &entity.FetchError{Kind: entity.FetchTimeout, Message: err.Error()}
	case errors.As(err, &ne) && ne.Timeout():
		return &entity.FetchError{Kind: entity.FetchTimeout, Message: err.Error()}
	default:
		return &entity.FetchError{Kind: entity.FetchTransport, Message: err.Error()}
	}
}

// isNullResult reports whether a JSON-RPC result is absent.
func isNullResult(result json.RawMessage) bool {
	return len(result) == 0 || string(result) == "null"
}
