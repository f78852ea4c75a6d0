package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerDetectZScoreMethod(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Method = ManagerZScore
	cfg.FeatureNames = []string{"rps"}
	m := NewManager(cfg)

	for i := 0; i < 20; i++ {
		m.Detect(map[string]float64{"rps": float64(10 + i%3)})
	}
	result := m.Detect(map[string]float64{"rps": 1000})
	assert.True(t, result.IsAnomaly)
	assert.NotNil(t, result.ZScore)
	assert.Nil(t, result.IsolationTree)
}

func TestManagerIsolationForestUntrainedNeverAnomaly(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Method = ManagerIsolationForest
	cfg.MinTrainingSamples = 1000
	m := NewManager(cfg)

	result := m.Detect(map[string]float64{"rps": 10})
	assert.False(t, result.IsAnomaly)
	assert.Nil(t, result.IsolationTree)
}

func TestManagerHybridTrainsIsolationForestAfterMinSamples(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Method = ManagerHybrid
	cfg.MinTrainingSamples = 10
	cfg.FeatureNames = []string{"rps"}
	m := NewManager(cfg)

	for i := 0; i < 15; i++ {
		m.Detect(map[string]float64{"rps": float64(i % 5)})
	}
	stats := m.Stats()
	assert.True(t, stats.IForestFitted)
	assert.Equal(t, 15, stats.TrainingSamples)
}

func TestManagerChangepointOverlayOnlyAfter100Samples(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.FeatureNames = []string{"rps"}
	cfg.MinTrainingSamples = 1000
	m := NewManager(cfg)

	var last ManagerResult
	for i := 0; i < 99; i++ {
		last = m.Detect(map[string]float64{"rps": 10})
	}
	assert.Nil(t, last.Changepoint)

	last = m.Detect(map[string]float64{"rps": 10})
	assert.NotNil(t, last.Changepoint)
}
