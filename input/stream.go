// Package input registers the telemetry_stream benthos Input, wrapping
// internal/ingest's Source implementations behind the ingest_manager.py
// stream.mode configuration surface.
package input

import (
	"context"
	"errors"
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/ingest"
)

func init() {
	configSpec := service.NewConfigSpec().
		Beta().
		Categories("Services").
		Summary("Reads telemetry events from a configurable upstream transport").
		Description(`
Generates or collects one telemetry event per message. The mode field
selects the transport: mock generates synthetic traffic for local testing,
socket and websocket collect from a running telemetry source, http polls a
list of URLs on an interval, and redis pops events off a Redis list.
`).
		Field(service.NewStringField("mode").
			Description("Transport: mock, socket, websocket, http, or redis").
			Default("mock")).
		Field(service.NewObjectField("mock",
			service.NewIntField("events_per_second").Description("Synthetic event rate").Default(ingest.DefaultEventsPerSecond),
			service.NewFloatField("anomaly_probability").Description("Fraction of events generated as anomalies").Default(ingest.DefaultAnomalyProbability),
			service.NewIntField("duration_seconds").Description("Stop generating after this many seconds; 0 runs forever").Default(0),
		)).
		Field(service.NewObjectField("socket",
			service.NewStringField("host").Description("Host to dial").Default("localhost"),
			service.NewIntField("port").Description("Port to dial").Default(9999),
			service.NewIntField("timeout_seconds").Description("Per-read timeout").Default(5),
		)).
		Field(service.NewObjectField("websocket",
			service.NewStringField("url").Description("WebSocket URL to connect to").Default(""),
			service.NewIntField("reconnect_interval_seconds").Description("Delay between reconnect attempts").Default(5),
		)).
		Field(service.NewObjectField("http",
			service.NewStringListField("urls").Description("URLs to poll in rotation").Default([]string{}),
			service.NewStringField("method").Description("HTTP method").Default("GET"),
			service.NewIntField("interval_seconds").Description("Delay between polls").Default(1),
			service.NewIntField("timeout_seconds").Description("Per-request timeout").Default(5),
		)).
		Field(service.NewObjectField("redis",
			service.NewStringField("addr").Description("Redis address").Default("localhost:6379"),
			service.NewStringField("password").Description("Redis password").Default(""),
			service.NewIntField("db").Description("Redis DB index").Default(0),
			service.NewStringField("list_key").Description("Redis list key to BRPOP from").Default("telemetry-events"),
			service.NewIntField("timeout_seconds").Description("BRPOP timeout").Default(5),
		))

	constructor := func(conf *service.ParsedConfig, mgr *service.Resources) (service.Input, error) {
		return newTelemetryStream(conf, mgr)
	}

	if err := service.RegisterInput("telemetry_stream", configSpec, constructor); err != nil {
		panic(err)
	}
}

// TelemetryStream is the benthos Input wrapping an ingest.Source.
type TelemetryStream struct {
	logger *service.Logger
	source ingest.Source
}

func newTelemetryStream(conf *service.ParsedConfig, mgr *service.Resources) (*TelemetryStream, error) {
	mode, err := conf.FieldString("mode")
	if err != nil {
		return nil, err
	}

	eventsPerSecond, err := conf.FieldInt("mock", "events_per_second")
	if err != nil {
		return nil, err
	}
	anomalyProbability, err := conf.FieldFloat("mock", "anomaly_probability")
	if err != nil {
		return nil, err
	}
	mockDurationSeconds, err := conf.FieldInt("mock", "duration_seconds")
	if err != nil {
		return nil, err
	}

	socketHost, err := conf.FieldString("socket", "host")
	if err != nil {
		return nil, err
	}
	socketPort, err := conf.FieldInt("socket", "port")
	if err != nil {
		return nil, err
	}
	socketTimeoutSeconds, err := conf.FieldInt("socket", "timeout_seconds")
	if err != nil {
		return nil, err
	}

	wsURL, err := conf.FieldString("websocket", "url")
	if err != nil {
		return nil, err
	}
	wsReconnectSeconds, err := conf.FieldInt("websocket", "reconnect_interval_seconds")
	if err != nil {
		return nil, err
	}

	httpURLs, err := conf.FieldStringList("http", "urls")
	if err != nil {
		return nil, err
	}
	httpMethod, err := conf.FieldString("http", "method")
	if err != nil {
		return nil, err
	}
	httpIntervalSeconds, err := conf.FieldInt("http", "interval_seconds")
	if err != nil {
		return nil, err
	}
	httpTimeoutSeconds, err := conf.FieldInt("http", "timeout_seconds")
	if err != nil {
		return nil, err
	}

	redisAddr, err := conf.FieldString("redis", "addr")
	if err != nil {
		return nil, err
	}
	redisPassword, err := conf.FieldString("redis", "password")
	if err != nil {
		return nil, err
	}
	redisDB, err := conf.FieldInt("redis", "db")
	if err != nil {
		return nil, err
	}
	redisListKey, err := conf.FieldString("redis", "list_key")
	if err != nil {
		return nil, err
	}
	redisTimeoutSeconds, err := conf.FieldInt("redis", "timeout_seconds")
	if err != nil {
		return nil, err
	}

	cfg := ingest.Config{
		Mode: ingest.Mode(mode),

		MockEventsPerSecond:    eventsPerSecond,
		MockAnomalyProbability: anomalyProbability,
		MockDuration:           time.Duration(mockDurationSeconds) * time.Second,

		SocketHost:    socketHost,
		SocketPort:    socketPort,
		SocketTimeout: time.Duration(socketTimeoutSeconds) * time.Second,

		WebSocketURL:               wsURL,
		WebSocketReconnectInterval: time.Duration(wsReconnectSeconds) * time.Second,

		HTTPURLs:     httpURLs,
		HTTPMethod:   httpMethod,
		HTTPInterval: time.Duration(httpIntervalSeconds) * time.Second,
		HTTPTimeout:  time.Duration(httpTimeoutSeconds) * time.Second,

		RedisAddr:     redisAddr,
		RedisPassword: redisPassword,
		RedisDB:       redisDB,
		RedisListKey:  redisListKey,
		RedisTimeout:  time.Duration(redisTimeoutSeconds) * time.Second,
	}

	source, err := ingest.NewSource(cfg)
	if err != nil {
		return nil, err
	}

	return &TelemetryStream{logger: mgr.Logger(), source: source}, nil
}

// Connect dials the underlying transport.
func (t *TelemetryStream) Connect(ctx context.Context) error {
	if err := t.source.Connect(ctx); err != nil {
		return err
	}
	t.logger.Infof("telemetry stream connected")
	return nil
}

// Read returns the next raw event off the transport. A source that returns
// context.Canceled while ctx itself is still live (the mock generator's
// end-of-duration signal) is reported as service.ErrEndOfInput so benthos
// treats it as a clean shutdown rather than a retryable error.
func (t *TelemetryStream) Read(ctx context.Context) (*service.Message, service.AckFunc, error) {
	raw, err := t.source.Read(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return nil, nil, service.ErrEndOfInput
		}
		return nil, nil, err
	}
	msg := service.NewMessage(raw)
	return msg, func(ctx context.Context, err error) error { return nil }, nil
}

// Close disconnects the underlying transport.
func (t *TelemetryStream) Close(ctx context.Context) error {
	return t.source.Close(ctx)
}
