package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/detect"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

func normalEvent(t time.Time, endpoint string) event.Event {
	return event.Event{
		Timestamp:    t,
		Endpoint:     endpoint,
		StatusCode:   event.Some(200),
		ResponseTime: event.Some(100.0),
		CPUUsage:     event.Some(30.0),
		MemoryUsage:  event.Some(40.0),
	}
}

// S1: a steady stream of normal events should not raise alerts.
func TestPipelineSteadyTrafficNoAlerts(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 30; i++ {
		alerts, err := p.ProcessEvent(ctx, normalEvent(base.Add(time.Duration(i)*time.Second), "/api/users"))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}
}

// S2: a 5xx response always produces a critical alert, regardless of
// accumulated training state.
func TestPipelineServerErrorAlwaysAlerts(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	ctx := context.Background()

	e := normalEvent(time.Now(), "/api/orders")
	e.StatusCode = event.Some(500)
	alerts, err := p.ProcessEvent(ctx, e)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
}

// S3: a sustained response-time spike after a steady baseline should trip
// the Comprehensive Detector's performance pass.
func TestPipelineResponseTimeSpikeAlerts(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 25; i++ {
		_, err := p.ProcessEvent(ctx, normalEvent(base.Add(time.Duration(i)*time.Second), "/api/users"))
		require.NoError(t, err)
	}

	var sawAlert bool
	for i := 0; i < 12; i++ {
		e := normalEvent(base.Add(time.Duration(25+i)*time.Second), "/api/users")
		e.ResponseTime = event.Some(5000.0)
		alerts, err := p.ProcessEvent(ctx, e)
		require.NoError(t, err)
		if len(alerts) > 0 {
			sawAlert = true
		}
	}
	assert.True(t, sawAlert)
}

// S4: the hybrid detector's Isolation Forest engages once enough training
// samples have accumulated, per the Manager's MinTrainingSamples gate.
func TestPipelineTrainsDetectorManagerOverTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.MinTrainingSamples = 10
	cfg.Detector.FeatureNames = []string{"rps", "error_rate"}
	p := New(cfg)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 15; i++ {
		_, err := p.ProcessEvent(ctx, normalEvent(base.Add(time.Duration(i)*time.Second), "/api/users"))
		require.NoError(t, err)
	}
	stats := p.Stats()
	assert.True(t, stats.Detect.IForestFitted)
}

// S5: repeated requests from one IP trip the security pass.
func TestPipelineSuspiciousIPActivity(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	ctx := context.Background()

	base := time.Now()
	var sawAlert bool
	for i := 0; i < 80; i++ {
		e := normalEvent(base.Add(time.Duration(i)*time.Second), "/api/users")
		e.IP = "10.0.0.7"
		alerts, err := p.ProcessEvent(ctx, e)
		require.NoError(t, err)
		if len(alerts) > 0 {
			sawAlert = true
		}
	}
	assert.True(t, sawAlert)
}

// S6: duplicate alert fingerprints within the dedup window are suppressed,
// so two identical consecutive HTTP errors on the same endpoint yield at
// most one alert the second time round.
func TestPipelineDeduplicatesRepeatedIdenticalAlert(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg)
	ctx := context.Background()

	e := normalEvent(time.Now(), "/api/payments")
	e.StatusCode = event.Some(503)
	first, err := p.ProcessEvent(ctx, e)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := p.ProcessEvent(ctx, e)
	require.NoError(t, err)
	assert.Less(t, len(second), len(first)+1)
}

func TestManagerDetectionResultCarriesChangepoint(t *testing.T) {
	r := detect.ManagerResult{
		IsAnomaly: true, AnomalyScore: 0.8, Method: detect.ManagerHybrid,
		Changepoint: &detect.ChangepointResult{HasChangepoint: true, Type: detect.ChangepointSpike},
	}
	out := managerDetectionResult(r)
	require.NotNil(t, out.Changepoint)
	assert.True(t, out.Changepoint.HasChangepoint)
	assert.Equal(t, "spike", out.Changepoint.Type)
}
