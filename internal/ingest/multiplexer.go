package ingest

import (
	"fmt"
	"time"
)

// Mode selects which transport the Ingest Multiplexer wires up, grounded
// on original_source/src/ingest/ingest_manager.py's stream.mode config key.
type Mode string

const (
	ModeMock      Mode = "mock"
	ModeSocket    Mode = "socket"
	ModeWebSocket Mode = "websocket"
	ModeHTTP      Mode = "http"
	ModeRedis     Mode = "redis"
)

// Config collects every mode's parameters; only the block matching Mode is
// consulted, mirroring ingest_manager.py's per-mode config sub-sections.
type Config struct {
	Mode Mode

	MockEventsPerSecond    int
	MockAnomalyProbability float64
	MockDuration           time.Duration

	SocketHost    string
	SocketPort    int
	SocketTimeout time.Duration

	WebSocketURL               string
	WebSocketReconnectInterval time.Duration

	HTTPURLs     []string
	HTTPMethod   string
	HTTPHeaders  map[string]string
	HTTPInterval time.Duration
	HTTPTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisListKey  string
	RedisTimeout  time.Duration
}

// NewSource builds the Source named by cfg.Mode, grounded on
// ingest_manager.py's _create_collector dispatch.
func NewSource(cfg Config) (Source, error) {
	switch cfg.Mode {
	case ModeMock, "":
		return NewMockGenerator(cfg.MockEventsPerSecond, cfg.MockAnomalyProbability, cfg.MockDuration), nil
	case ModeSocket:
		return NewSocketSource(cfg.SocketHost, cfg.SocketPort, cfg.SocketTimeout), nil
	case ModeWebSocket:
		return NewWebSocketSource(cfg.WebSocketURL, cfg.WebSocketReconnectInterval), nil
	case ModeHTTP:
		return NewHTTPPoller(cfg.HTTPURLs, cfg.HTTPMethod, cfg.HTTPHeaders, cfg.HTTPInterval, cfg.HTTPTimeout), nil
	case ModeRedis:
		return NewRedisSource(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisListKey, cfg.RedisTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported ingest mode: %s", cfg.Mode)
	}
}
