package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketSourceReadsRelayedFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"endpoint":"/api/users"}`)))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	src := NewWebSocketSource(url, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, src.Connect(ctx))
	defer src.Close(ctx)

	data, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/api/users")
}

func TestWebSocketSourceReadReturnsErrorAfterClose(t *testing.T) {
	src := NewWebSocketSource("ws://127.0.0.1:1/", 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, src.Connect(ctx))
	require.NoError(t, src.Close(ctx))

	_, err := src.Read(ctx)
	assert.Error(t, err)
}

func TestWebSocketSourceReadRespectsContextCancellation(t *testing.T) {
	src := NewWebSocketSource("ws://127.0.0.1:1/", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Connect(ctx))
	defer src.Close(context.Background())

	cancel()
	_, err := src.Read(ctx)
	assert.Error(t, err)
}

func TestNewWebSocketSourceAppliesDefaults(t *testing.T) {
	src := NewWebSocketSource("", 0)
	assert.Equal(t, "ws://localhost:8765", src.URL)
	assert.Equal(t, DefaultWebSocketReconnectInterval, src.ReconnectInterval)
}
