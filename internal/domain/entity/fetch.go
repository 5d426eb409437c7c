package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FetchErrorKind classifies why an endpoint query failed.
type FetchErrorKind string

const (
	// FetchTimeout means the request (or the per-block deadline) expired.
	FetchTimeout FetchErrorKind = "timeout"

	// FetchTransport covers connection-level failures (refused, reset, DNS).
	FetchTransport FetchErrorKind = "transport"

	// FetchRateLimited means the endpoint answered HTTP 429.
	FetchRateLimited FetchErrorKind = "rate_limited"

	// FetchProtocol means the endpoint answered with a JSON-RPC error or a
	// non-retryable HTTP status. Code carries the JSON-RPC error code or,
	// negated HTTP semantics aside, the HTTP status.
	FetchProtocol FetchErrorKind = "protocol_error"

	// FetchNotFound means the endpoint returned a null result for the block.
	// This is a legitimate divergence signal, never retried.
	FetchNotFound FetchErrorKind = "not_found"
)

// retryableRPCCodes are JSON-RPC error codes treated as transient.
// -32603 is the generic internal error; -32005 is the conventional
// "limit exceeded" code used by hosted providers.
var retryableRPCCodes = map[int]bool{
	-32603: true,
	-32005: true,
}

// FetchError is the terminal failure of one endpoint query, after the
// client's internal retries are exhausted.
type FetchError struct {
	Kind    FetchErrorKind
	Code    int    // JSON-RPC error code or HTTP status, when applicable
	Message string // human-readable detail
}

func (e *FetchError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether a failure of this kind should be retried by
// the endpoint client. NotFound is a divergence signal, not a fault, and
// authentication failures (HTTP 401/403) are final.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchTimeout, FetchTransport, FetchRateLimited:
		return true
	case FetchProtocol:
		if e.Code == 401 || e.Code == 403 {
			return false
		}
		if e.Code >= 500 && e.Code < 600 {
			return true
		}
		return retryableRPCCodes[e.Code]
	default:
		return false
	}
}

// AsFetchError extracts a *FetchError from an error chain, wrapping
// unclassified errors as transport failures so every endpoint outcome
// carries a kind.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: FetchTransport, Message: err.Error()}
}

// RawBlockResult is one endpoint's answer for one block: the raw block and
// receipt payloads, or the failures that stood after retries. It is created
// once by the fetcher and never mutated.
type RawBlockResult struct {
	Endpoint string
	Ref      BlockRef

	Block    json.RawMessage
	Receipts json.RawMessage

	BlockErr    *FetchError
	ReceiptsErr *FetchError
}

// Success reports whether every requested payload arrived.
func (r *RawBlockResult) Success() bool {
	return r.BlockErr == nil && r.ReceiptsErr == nil
}

// FailureDetail renders the failure(s) for reporting; empty on success.
func (r *RawBlockResult) FailureDetail() string {
	switch {
	case r.BlockErr != nil && r.ReceiptsErr != nil:
		return fmt.Sprintf("block: %s; receipts: %s", r.BlockErr, r.ReceiptsErr)
	case r.BlockErr != nil:
		return fmt.Sprintf("block: %s", r.BlockErr)
	case r.ReceiptsErr != nil:
		return fmt.Sprintf("receipts: %s", r.ReceiptsErr)
	default:
		return ""
	}
}
