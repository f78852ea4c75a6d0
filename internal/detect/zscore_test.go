package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScoreDetectorPredictNeedsHistory(t *testing.T) {
	d := NewZScoreDetector(0, 0)
	isAnomaly, z := d.Predict(10)
	assert.False(t, isAnomaly)
	assert.Equal(t, 0.0, z)
}

func TestZScoreDetectorPredictFlagsOutlier(t *testing.T) {
	d := NewZScoreDetector(3.0, 100)
	d.Fit([]float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10})
	isAnomaly, z := d.Predict(1000)
	assert.True(t, isAnomaly)
	assert.Greater(t, z, 3.0)
}

func TestZScoreDetectorWindowTrims(t *testing.T) {
	d := NewZScoreDetector(3.0, 5)
	d.Fit([]float64{1, 2, 3, 4, 5})
	for i := 0; i < 10; i++ {
		d.Predict(float64(i))
	}
	assert.LessOrEqual(t, len(d.history), 5)
}

func TestZScoreDetectorDetectSharesHistoryAcrossFeatures(t *testing.T) {
	d := NewZScoreDetector(3.0, 100)
	features := map[string]float64{"a": 10, "b": 10}
	// Repeated calls with the same pair of feature values: since history is
	// shared across features within one Detect call, both values feed the
	// same running baseline rather than two independent ones.
	for i := 0; i < 5; i++ {
		d.Detect(features, []string{"a", "b"})
	}
	assert.GreaterOrEqual(t, len(d.history), 2)
}

func TestZScoreDetectorDetectDefaultsToSortedFeatureNames(t *testing.T) {
	d := NewZScoreDetector(3.0, 100)
	result := d.Detect(map[string]float64{"z": 1, "a": 2}, nil)
	assert.Contains(t, result.Details, "z")
	assert.Contains(t, result.Details, "a")
}
