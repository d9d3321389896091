// Package logstream maintains a reconnecting WebSocket eth_subscribe
// subscription for a single (address, topic0 alternatives) log filter and
// yields raw log records on a channel.
package logstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	backoff      = 3 * time.Second
	pingInterval = 20 * time.Second
)

// subscribeRequest is the eth_subscribe JSON-RPC envelope.
type subscribeRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type subscribeFilter struct {
	Address string     `json:"address"`
	Topics  [][]string `json:"topics"`
}

type subscribeResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type subscriptionNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// Stream produces a lazy, infinite sequence of raw log records for one
// (address, topic0 alternatives) filter. Any I/O or decode failure closes
// the connection and reconnects after a fixed back-off; a fresh
// subscription id is obtained on each reconnect, and events received
// during the gap are lost (§9 accepts this).
type Stream struct {
	wssURL  string
	address string
	topics  []string
}

// New builds a log stream for the given pool address and topic0
// alternatives (e.g. keccak256 of Mint/Burn/ModifyLiquidity signatures).
func New(wssURL, address string, topics []string) *Stream {
	return &Stream{wssURL: wssURL, address: address, topics: topics}
}

// Run connects and reconnects until ctx is canceled, sending each decoded
// `params.result` notification body on out. The caller creates out and
// only reads from it; Run closes it on return.
func (s *Stream) Run(ctx context.Context, out chan<- json.RawMessage) error {
	defer close(out)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.connectAndRead(ctx, out); err != nil {
			log.Printf("logstream: connection to %s lost: %v; reconnecting in %s", s.wssURL, err, backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context, out chan<- json.RawMessage) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wssURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go s.keepAlive(conn, stop)

	subID, err := s.subscribe(conn)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var notif subscriptionNotification
		if err := json.Unmarshal(raw, &notif); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if notif.Method != "eth_subscription" || notif.Params.Subscription != subID {
			continue
		}
		select {
		case out <- notif.Params.Result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) subscribe(conn *websocket.Conn) (string, error) {
	req := subscribeRequest{
		ID:     1,
		Method: "eth_subscribe",
		Params: []any{"logs", subscribeFilter{Address: s.address, Topics: [][]string{s.topics}}},
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write subscribe request: %w", err)
	}
	var resp subscribeResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return "", fmt.Errorf("read subscribe response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("node rejected subscription: %s", resp.Error.Message)
	}
	if resp.Result == "" {
		return "", fmt.Errorf("empty subscription id")
	}
	return resp.Result, nil
}

func (s *Stream) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(pingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
