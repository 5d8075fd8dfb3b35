package mt5bridge

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelayMin = time.Second
	reconnectDelayMax = 30 * time.Second
	readDeadline      = 60 * time.Second
	pingInterval      = 20 * time.Second
)

// Stream delivers live quotes over the bridge's WebSocket feed. The engine
// itself works from polled candles; the stream feeds the health monitor and
// keeps the session warm between cycles.
type Stream struct {
	url     string
	apiKey  string
	symbols []string
	quotes  chan Quote

	// OnReconnect, if set, is called before each reconnection attempt.
	OnReconnect func()
}

// NewStream creates a quote stream for the given symbols. Quotes are dropped
// when the consumer falls behind; the feed is advisory, not authoritative.
func NewStream(url, apiKey string, symbols []string) *Stream {
	return &Stream{
		url:     url,
		apiKey:  apiKey,
		symbols: symbols,
		quotes:  make(chan Quote, 256),
	}
}

// Quotes returns the receive channel. Closed when Run returns.
func (s *Stream) Quotes() <-chan Quote { return s.quotes }

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff on any failure.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.quotes)

	delay := reconnectDelayMin
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(ctx); err != nil {
			log.Printf("[stream] connection lost: %v (retry in %s)", err, delay)
		}
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectDelayMax {
			delay = reconnectDelayMax
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	header := map[string][]string{"X-API-Key": {s.apiKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[stream] connected to %s", s.url)

	sub := map[string]any{"action": "subscribe", "symbols": s.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// Ping keepalive; the bridge drops idle connections.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var q Quote
		if err := json.Unmarshal(raw, &q); err != nil || q.Symbol == "" {
			continue // non-quote frame (ack, heartbeat)
		}
		select {
		case s.quotes <- q:
		default:
			// consumer behind, drop
		}
	}
}
