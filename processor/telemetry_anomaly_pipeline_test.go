package processor

import (
	"context"
	"testing"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryAnomalyPipelineConfig(t *testing.T) {
	env := service.NewEnvironment()
	configSpec := service.NewConfigSpec().
		Field(service.NewIntField("window_capacity").Default(1000)).
		Field(service.NewBoolField("clip_outliers").Default(true)).
		Field(service.NewStringField("scaling_method").Default(""))
	assert.NotNil(t, configSpec)
	assert.NotNil(t, env)
}

func TestProcessNormalEventRoutesToNormalTopic(t *testing.T) {
	conf, err := normalPipelineConfigSpec().ParseYAML(`
window_capacity: 50
detector:
  method: hybrid
  min_training_samples: 1000
alert:
  threshold: 0.99
`, nil)
	require.NoError(t, err)

	res := service.MockResources()
	p, err := newTelemetryAnomalyPipeline(conf, res)
	require.NoError(t, err)

	msg := service.NewMessage([]byte(`{"endpoint":"/api/users","status_code":200,"response_time":100,"cpu_usage":30,"memory_usage":40}`))
	out, err := p.Process(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, out, 1)

	topic, ok := out[0].MetaGet("topic")
	require.True(t, ok)
	assert.Equal(t, "telemetry-normal", topic)
}

func TestProcessServerErrorRoutesToAlertTopic(t *testing.T) {
	conf, err := normalPipelineConfigSpec().ParseYAML(`
window_capacity: 50
`, nil)
	require.NoError(t, err)

	res := service.MockResources()
	p, err := newTelemetryAnomalyPipeline(conf, res)
	require.NoError(t, err)

	msg := service.NewMessage([]byte(`{"endpoint":"/api/orders","status_code":500,"response_time":100}`))
	out, err := p.Process(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, out, 1)

	topic, ok := out[0].MetaGet("topic")
	require.True(t, ok)
	assert.Equal(t, "telemetry-alerts", topic)

	level, ok := out[0].MetaGet("level")
	require.True(t, ok)
	assert.Equal(t, "critical", level)
}

func TestProcessMalformedEventReturnsError(t *testing.T) {
	conf, err := normalPipelineConfigSpec().ParseYAML(``, nil)
	require.NoError(t, err)

	res := service.MockResources()
	p, err := newTelemetryAnomalyPipeline(conf, res)
	require.NoError(t, err)

	msg := service.NewMessage([]byte(`not json`))
	_, err = p.Process(context.Background(), msg)
	assert.Error(t, err)
}

// normalPipelineConfigSpec rebuilds the registered ConfigSpec for tests that
// need to parse partial YAML without going through the plugin registry.
func normalPipelineConfigSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Field(service.NewIntField("window_capacity").Default(1000)).
		Field(service.NewBoolField("clip_outliers").Default(true)).
		Field(service.NewIntField("smoothing_window").Default(5)).
		Field(service.NewStringField("scaling_method").Default("")).
		Field(service.NewIntField("feature_window_size").Default(100)).
		Field(service.NewObjectField("detector",
			service.NewStringField("method").Default("hybrid"),
			service.NewStringListField("features").Default([]string{
				"rps", "error_rate",
				"response_time_mean", "response_time_std",
				"cpu_usage_mean", "memory_usage_mean",
			}),
			service.NewIntField("min_training_samples").Default(50),
			service.NewObjectField("zscore",
				service.NewFloatField("threshold").Default(3.0),
				service.NewIntField("window_size").Default(100),
			),
			service.NewObjectField("isolation_forest",
				service.NewFloatField("contamination").Default(0.1),
				service.NewIntField("n_estimators").Default(100),
				service.NewIntField("max_samples").Default(256),
			),
			service.NewObjectField("changepoint",
				service.NewBoolField("enabled").Default(true),
				service.NewFloatField("sensitivity").Default(0.3),
				service.NewFloatField("min_change").Default(0.2),
			),
		)).
		Field(service.NewObjectField("alert",
			service.NewIntField("max_alerts").Default(1000),
			service.NewFloatField("threshold").Default(0.7),
			service.NewIntField("deduplication_window").Default(60),
		)).
		Field(service.NewStringField("alert_topic").Default("telemetry-alerts")).
		Field(service.NewStringField("normal_topic").Default("telemetry-normal")).
		Field(service.NewBoolField("console_sink").Default(false))
}
