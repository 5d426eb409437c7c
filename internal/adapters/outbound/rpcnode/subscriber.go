package rpcnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
	"github.com/archon-research/jsonrpc-scan/internal/pkg/hexutil"
)

// Compile-time check that Subscriber implements outbound.HeadSource
var _ outbound.HeadSource = (*Subscriber)(nil)

// Subscriber delivers chain-head heights from a newHeads websocket
// subscription. On connection loss it reconnects with exponential backoff
// and resubscribes; consumers only see a stream of heights.
type Subscriber struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSubscriber creates a newHeads head source for the endpoint.
func NewSubscriber(config Config) (*Subscriber, error) {
	if config.WSURL == "" {
		return nil, errors.New("WSURL is required")
	}
	config = config.withDefaults()

	return &Subscriber{
		config: config,
		logger: config.Logger.With("component", "rpcnode-subscriber", "endpoint", config.Name),
	}, nil
}

// Heads connects, subscribes to newHeads, and streams head heights until the
// context is cancelled. The returned channel is closed on cancellation.
func (s *Subscriber) Heads(ctx context.Context) (<-chan int64, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	heads := make(chan int64, 64)
	go s.readLoop(ctx, heads)
	return heads, nil
}

// Close tears down the websocket connection.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// connect dials the websocket and issues the newHeads subscription.
func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.config.Timeout}
	conn, _, err := dialer.DialContext(ctx, s.config.WSURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	sub := jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []interface{}{"newHeads"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe request: %w", err)
	}

	var resp jsonRPCResponse
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe response: %w", err)
	}
	if resp.Error != nil {
		conn.Close()
		return fmt.Errorf("subscribe rejected: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("newHeads subscription established")
	return nil
}

// headNotification is the eth_subscription push frame.
type headNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

// readLoop reads head notifications, reconnecting with backoff on failure.
func (s *Subscriber) readLoop(ctx context.Context, heads chan<- int64) {
	defer close(heads)
	defer s.Close()

	backoff := s.config.InitialBackoff
	for ctx.Err() == nil {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.config.Clock.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
			if err := s.connect(ctx); err != nil {
				s.logger.Error("reconnect failed", "error", err)
			}
			continue
		}

		var note headNotification
		if err := conn.ReadJSON(&note); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("websocket read failed, reconnecting", "backoff", backoff, "error", err)
			s.Close()
			continue
		}

		backoff = s.config.InitialBackoff
		if note.Method != "eth_subscription" {
			continue
		}
		num, err := hexutil.ParseInt64(note.Params.Result.Number)
		if err != nil {
			s.logger.Warn("unparseable head number", "raw", note.Params.Result.Number, "error", err)
			continue
		}
		select {
		case heads <- num:
		case <-ctx.Done():
			return
		}
	}
}

// unmarshalHeadNumber extracts the head height from a raw notification,
// exposed for tests.
func unmarshalHeadNumber(data []byte) (int64, error) {
	var note headNotification
	if err := json.Unmarshal(data, &note); err != nil {
		return 0, err
	}
	if note.Method != "eth_subscription" {
		return 0, fmt.Errorf("not a subscription frame: %q", note.Method)
	}
	return hexutil.ParseInt64(note.Params.Result.Number)
}
