package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// DefaultWebSocketReconnectInterval matches
// websocket_stream.py's WebSocketStreamCollector default.
const DefaultWebSocketReconnectInterval = 5 * time.Second

// WebSocketSource collects events from a WebSocket server, reconnecting on
// a fixed interval when the connection drops, grounded on
// original_source/src/ingest/websocket_stream.py. The Python source polls
// an in-process queue on a background thread; here a background goroutine
// feeds a channel instead.
type WebSocketSource struct {
	URL               string
	ReconnectInterval time.Duration

	messages chan []byte
	stop     chan struct{}
}

// NewWebSocketSource builds a source with Python's defaults when zero
// values are passed.
func NewWebSocketSource(url string, reconnectInterval time.Duration) *WebSocketSource {
	if url == "" {
		url = "ws://localhost:8765"
	}
	if reconnectInterval <= 0 {
		reconnectInterval = DefaultWebSocketReconnectInterval
	}
	return &WebSocketSource{
		URL:               url,
		ReconnectInterval: reconnectInterval,
		messages:          make(chan []byte, 256),
		stop:              make(chan struct{}),
	}
}

func (w *WebSocketSource) Connect(ctx context.Context) error {
	go w.run(ctx)
	return nil
}

// run dials the server and relays incoming frames onto w.messages for as
// long as the source is alive, reconnecting with a fixed backoff whenever
// the connection drops.
func (w *WebSocketSource) run(ctx context.Context) {
	bo := backoff.WithContext(backoff.NewConstantBackOff(w.ReconnectInterval), ctx)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.URL, nil)
		if err != nil {
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			select {
			case <-time.After(wait):
				continue
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		bo.Reset()

		w.readLoop(ctx, conn)
		conn.Close()
	}
}

func (w *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case w.messages <- data:
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		}
	}
}

// Read blocks until a message arrives, the context is canceled, or the
// source is closed.
func (w *WebSocketSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-w.messages:
		if !ok {
			return nil, fmt.Errorf("websocket source closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stop:
		return nil, fmt.Errorf("websocket source closed")
	}
}

func (w *WebSocketSource) Close(ctx context.Context) error {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	return nil
}
