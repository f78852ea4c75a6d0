package input

import (
	"context"
	"testing"
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStreamConfigSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Field(service.NewStringField("mode").Default("mock")).
		Field(service.NewObjectField("mock",
			service.NewIntField("events_per_second").Default(10),
			service.NewFloatField("anomaly_probability").Default(0.05),
			service.NewIntField("duration_seconds").Default(0),
		)).
		Field(service.NewObjectField("socket",
			service.NewStringField("host").Default("localhost"),
			service.NewIntField("port").Default(9999),
			service.NewIntField("timeout_seconds").Default(5),
		)).
		Field(service.NewObjectField("websocket",
			service.NewStringField("url").Default(""),
			service.NewIntField("reconnect_interval_seconds").Default(5),
		)).
		Field(service.NewObjectField("http",
			service.NewStringListField("urls").Default([]string{}),
			service.NewStringField("method").Default("GET"),
			service.NewIntField("interval_seconds").Default(1),
			service.NewIntField("timeout_seconds").Default(5),
		)).
		Field(service.NewObjectField("redis",
			service.NewStringField("addr").Default("localhost:6379"),
			service.NewStringField("password").Default(""),
			service.NewIntField("db").Default(0),
			service.NewStringField("list_key").Default("telemetry-events"),
			service.NewIntField("timeout_seconds").Default(5),
		))
}

func TestTelemetryStreamMockModeReadsMessages(t *testing.T) {
	conf, err := testStreamConfigSpec().ParseYAML(`
mode: mock
mock:
  events_per_second: 1000
  anomaly_probability: 0
`, nil)
	require.NoError(t, err)

	res := service.MockResources()
	stream, err := newTelemetryStream(conf, res)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, stream.Connect(ctx))
	defer stream.Close(ctx)

	msg, ack, err := stream.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, ack(ctx, nil))
}

func TestTelemetryStreamMockModeStopsAfterDuration(t *testing.T) {
	conf, err := testStreamConfigSpec().ParseYAML(`
mode: mock
mock:
  events_per_second: 1000
  duration_seconds: 1
`, nil)
	require.NoError(t, err)

	res := service.MockResources()
	stream, err := newTelemetryStream(conf, res)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, stream.Connect(ctx))
	defer stream.Close(ctx)

	time.Sleep(1100 * time.Millisecond)
	_, _, err = stream.Read(ctx)
	assert.Error(t, err)
}
