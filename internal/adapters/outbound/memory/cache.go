// Package memory provides in-memory implementations of the outbound ports
// for testing and development. All adapters are safe for concurrent use and
// lose their data on process restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Compile-time check that ResponseCache implements outbound.ResponseCache
var _ outbound.ResponseCache = (*ResponseCache)(nil)

// ResponseCache is an in-memory implementation of the ResponseCache port.
type ResponseCache struct {
	mu       sync.RWMutex
	payloads map[string]json.RawMessage
	closed   bool
}

// NewResponseCache creates a new in-memory response cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		payloads: make(map[string]json.RawMessage),
	}
}

func (c *ResponseCache) key(endpoint string, ref entity.BlockRef, kind string) string {
	return fmt.Sprintf("%s:%s:%s", endpoint, ref, kind)
}

// Get retrieves a cached payload. Returns nil, nil on a cache miss.
func (c *ResponseCache) Get(ctx context.Context, endpoint string, ref entity.BlockRef, kind string) (json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payloads[c.key(endpoint, ref, kind)], nil
}

// Set stores a payload.
func (c *ResponseCache) Set(ctx context.Context, endpoint string, ref entity.BlockRef, kind string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads[c.key(endpoint, ref, kind)] = data
	return nil
}

// Close marks the cache as closed.
func (c *ResponseCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// EntryCount returns the number of cached payloads (for testing).
func (c *ResponseCache) EntryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.payloads)
}

// Clear removes all cached payloads (for testing).
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = make(map[string]json.RawMessage)
}
