// Package detect implements the anomaly detector ensemble of spec §4.4-4.8:
// Z-Score, Isolation Forest, Change-Point, the rule-based Comprehensive
// Detector, and the Detector Manager that routes between them.
package detect

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultZScoreThreshold and DefaultZScoreWindow match zscore_detector.py's
// ZScoreDetector defaults.
const (
	DefaultZScoreThreshold = 3.0
	DefaultZScoreWindow    = 100
)

// ZScoreResult is one feature's Z-Score evaluation.
type ZScoreResult struct {
	IsAnomaly bool
	ZScore    float64
	Value     float64
}

// ZScoreDetection is the aggregate result of a Detect call across a set of
// features.
type ZScoreDetection struct {
	IsAnomaly    bool
	AnomalyScore float64
	Details      map[string]ZScoreResult
}

// ZScoreDetector maintains a single rolling history shared across every
// feature passed to Detect, grounded directly on zscore_detector.py's
// ZScoreDetector: history is not per-feature, it is per-detector-instance,
// so calling Detect with several feature names folds all of their values
// into one shared statistical baseline.
type ZScoreDetector struct {
	Threshold  float64
	WindowSize int
	history    []float64
}

// NewZScoreDetector builds a detector with Python's defaults when zero
// values are passed.
func NewZScoreDetector(threshold float64, windowSize int) *ZScoreDetector {
	if threshold <= 0 {
		threshold = DefaultZScoreThreshold
	}
	if windowSize <= 0 {
		windowSize = DefaultZScoreWindow
	}
	return &ZScoreDetector{Threshold: threshold, WindowSize: windowSize}
}

// Fit seeds the detector's history from values, keeping only the most
// recent WindowSize samples.
func (d *ZScoreDetector) Fit(values []float64) {
	start := 0
	if len(values) > d.WindowSize {
		start = len(values) - d.WindowSize
	}
	d.history = append([]float64(nil), values[start:]...)
}

// Predict evaluates a single value against the current history, then
// appends it (trimming to WindowSize), matching zscore_detector.py's predict.
func (d *ZScoreDetector) Predict(value float64) (bool, float64) {
	if len(d.history) < 2 {
		d.push(value)
		return false, 0.0
	}

	mean := stat.Mean(d.history, nil)
	std := stat.StdDev(d.history, nil)
	if std == 0 {
		d.push(value)
		return false, 0.0
	}

	zScore := abs((value - mean) / std)
	isAnomaly := zScore > d.Threshold

	d.push(value)
	return isAnomaly, zScore
}

func (d *ZScoreDetector) push(value float64) {
	d.history = append(d.history, value)
	if len(d.history) > d.WindowSize {
		d.history = d.history[1:]
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Detect evaluates every named feature present and numeric in features.
// The overall anomaly_score is the max z-score across features, normalized
// by Threshold, matching zscore_detector.py's detect.
func (d *ZScoreDetector) Detect(features map[string]float64, featureNames []string) ZScoreDetection {
	if featureNames == nil {
		featureNames = make([]string, 0, len(features))
		for k := range features {
			featureNames = append(featureNames, k)
		}
		sort.Strings(featureNames)
	}

	result := ZScoreDetection{Details: make(map[string]ZScoreResult)}
	var maxZ float64
	var anomalyCount int

	for _, name := range featureNames {
		value, ok := features[name]
		if !ok {
			continue
		}
		isAnomaly, z := d.Predict(value)
		result.Details[name] = ZScoreResult{IsAnomaly: isAnomaly, ZScore: z, Value: value}
		if isAnomaly {
			anomalyCount++
		}
		if abs(z) > maxZ {
			maxZ = abs(z)
		}
	}

	result.IsAnomaly = anomalyCount > 0
	result.AnomalyScore = maxZ / d.Threshold
	return result
}
