package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	json "github.com/goccy/go-json"
)

func TestMockGeneratorReadProducesValidJSON(t *testing.T) {
	m := NewMockGenerator(1000, 0.0, 0)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	raw, err := m.Read(ctx)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "endpoint")
	assert.Contains(t, decoded, "timestamp")
}

func TestMockGeneratorStopsAfterDuration(t *testing.T) {
	m := NewMockGenerator(1000, 0.0, 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	time.Sleep(20 * time.Millisecond)
	_, err := m.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockGeneratorAnomalyAlwaysFlagged(t *testing.T) {
	m := NewMockGenerator(1000, 1.0, 0)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	raw, err := m.Read(ctx)
	require.NoError(t, err)

	var decoded struct {
		IsAnomaly bool `json:"is_anomaly"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.IsAnomaly)
}

func TestMockGeneratorReadRespectsContextCancellation(t *testing.T) {
	m := NewMockGenerator(1, 0.0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Connect(ctx))
	cancel()

	_, err := m.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
