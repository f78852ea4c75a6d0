package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultChangepointSensitivity/MinChange/Window match changepoint.py's
// ChangePointDetector defaults. DetectorManager also instantiates it with
// DefaultChangepointWindow regardless of config, grounded on
// detector_manager.py's _initialize_detectors.
const (
	DefaultChangepointSensitivity = 0.3
	DefaultChangepointMinChange   = 0.2
	DefaultChangepointWindow      = 50
)

// ChangepointType names which rule fired.
type ChangepointType string

const (
	ChangepointNone         ChangepointType = ""
	ChangepointSpike        ChangepointType = "spike"
	ChangepointDrop         ChangepointType = "drop"
	ChangepointPatternShift ChangepointType = "pattern_shift"
	ChangepointSmoothedDelta ChangepointType = "smoothed_delta"
)

// ChangepointFeatureResult is one feature's change-point finding.
type ChangepointFeatureResult struct {
	Type  ChangepointType
	Index int
}

// ChangepointResult is the aggregate result of Detect across several
// features, grounded on changepoint.py's detect: Type is overwritten by each
// feature that reports a change-point (features are visited in map order,
// so which one wins is not defined), Index is the largest index reported by
// any feature, and every per-feature hit is recorded in Details.
type ChangepointResult struct {
	HasChangepoint bool
	Type           ChangepointType
	Index          int
	Details        map[string]ChangepointFeatureResult
}

// ChangepointDetector finds spikes, drops, and pattern shifts in feature
// value series, grounded on original_source/src/anomaly/changepoint.py.
type ChangepointDetector struct {
	Sensitivity float64
	MinChange   float64
	WindowSize  int
}

// NewChangepointDetector builds a detector with Python's defaults when zero
// values are passed.
func NewChangepointDetector(sensitivity, minChange float64, windowSize int) *ChangepointDetector {
	if sensitivity == 0 {
		sensitivity = DefaultChangepointSensitivity
	}
	if minChange == 0 {
		minChange = DefaultChangepointMinChange
	}
	if windowSize <= 0 {
		windowSize = DefaultChangepointWindow
	}
	return &ChangepointDetector{Sensitivity: sensitivity, MinChange: minChange, WindowSize: windowSize}
}

// DetectSpike compares the mean of the first WindowSize values against the
// mean of the last WindowSize values; a sufficiently large relative
// increase beyond thresholdMultiplier (default 1+Sensitivity) is a spike.
func (d *ChangepointDetector) DetectSpike(values []float64, thresholdMultiplier float64) (bool, int) {
	if len(values) < d.WindowSize*2 {
		return false, -1
	}
	if thresholdMultiplier == 0 {
		thresholdMultiplier = 1.0 + d.Sensitivity
	}

	prevMean := stat.Mean(values[:d.WindowSize], nil)
	currentMean := stat.Mean(values[len(values)-d.WindowSize:], nil)
	if prevMean == 0 {
		return false, -1
	}

	changeRatio := (currentMean - prevMean) / prevMean
	if changeRatio > d.MinChange && currentMean > prevMean*thresholdMultiplier {
		return true, len(values) - d.WindowSize
	}
	return false, -1
}

// DetectDrop is DetectSpike's mirror for sudden decreases.
func (d *ChangepointDetector) DetectDrop(values []float64, thresholdMultiplier float64) (bool, int) {
	if len(values) < d.WindowSize*2 {
		return false, -1
	}
	if thresholdMultiplier == 0 {
		thresholdMultiplier = 1.0 - d.Sensitivity
	}

	prevMean := stat.Mean(values[:d.WindowSize], nil)
	currentMean := stat.Mean(values[len(values)-d.WindowSize:], nil)
	if prevMean == 0 {
		return false, -1
	}

	changeRatio := math.Abs((currentMean - prevMean) / prevMean)
	if changeRatio > d.MinChange && currentMean < prevMean*thresholdMultiplier {
		return true, len(values) - d.WindowSize
	}
	return false, -1
}

// DetectPatternShift flags a combined change in mean and spread between the
// first and last windows.
func (d *ChangepointDetector) DetectPatternShift(values []float64) (bool, int) {
	if len(values) < d.WindowSize*2 {
		return false, -1
	}

	prev := values[:d.WindowSize]
	current := values[len(values)-d.WindowSize:]
	prevMean := stat.Mean(prev, nil)
	prevStd := stat.StdDev(prev, nil)
	currentMean := stat.Mean(current, nil)
	currentStd := stat.StdDev(current, nil)

	meanChange := math.Abs(currentMean-prevMean) / (prevMean + 1e-10)
	stdChange := math.Abs(currentStd-prevStd) / (prevStd + 1e-10)
	totalChange := (meanChange + stdChange) / 2.0

	if totalChange > d.MinChange {
		return true, len(values) - d.WindowSize
	}
	return false, -1
}

// DetectSmoothedDelta smooths values with a moving average, then flags the
// most recent delta that exceeds mean(|delta|) + Sensitivity*std(|delta|).
func (d *ChangepointDetector) DetectSmoothedDelta(values []float64, smoothingWindow int) (bool, int) {
	if smoothingWindow <= 0 {
		smoothingWindow = 10
	}
	if len(values) < smoothingWindow*2 {
		return false, -1
	}

	smoothed := movingAverageSame(values, smoothingWindow)
	if len(smoothed) < 2 {
		return false, -1
	}
	deltas := make([]float64, len(smoothed)-1)
	absDeltas := make([]float64, len(deltas))
	for i := range deltas {
		deltas[i] = smoothed[i+1] - smoothed[i]
		absDeltas[i] = math.Abs(deltas[i])
	}

	deltaMean := stat.Mean(absDeltas, nil)
	deltaStd := stat.StdDev(absDeltas, nil)
	threshold := deltaMean + d.Sensitivity*deltaStd

	changeIdx := -1
	for i, ad := range absDeltas {
		if ad > threshold {
			changeIdx = i
		}
	}
	if changeIdx >= 0 {
		return true, changeIdx
	}
	return false, -1
}

func movingAverageSame(values []float64, window int) []float64 {
	n := len(values)
	kernel := 1.0 / float64(window)
	full := make([]float64, n+window-1)
	for i := 0; i < n; i++ {
		for j := 0; j < window; j++ {
			full[i+j] += values[i] * kernel
		}
	}
	start := (window - 1) / 2
	out := make([]float64, n)
	copy(out, full[start:start+n])
	return out
}

// Method selects which rule(s) Detect runs.
type Method string

const (
	MethodAuto           Method = "auto"
	MethodSpike          Method = "spike"
	MethodDrop           Method = "drop"
	MethodPatternShift   Method = "pattern_shift"
	MethodSmoothedDelta  Method = "smoothed_delta"
)

// Detect runs the selected method(s) over each feature's value series,
// grounded on changepoint.py's detect. "auto" tries spike then drop per
// feature (stopping at the first hit); pattern_shift and smoothed_delta
// only run when explicitly selected, matching the Python source exactly.
func (d *ChangepointDetector) Detect(featureValues map[string][]float64, method Method) ChangepointResult {
	if method == "" {
		method = MethodAuto
	}

	result := ChangepointResult{Index: -1, Details: make(map[string]ChangepointFeatureResult)}

	for name, values := range featureValues {
		if len(values) < d.WindowSize*2 {
			continue
		}

		if method == MethodAuto || method == MethodSpike {
			if detected, idx := d.DetectSpike(values, 0); detected {
				result.HasChangepoint = true
				result.Type = ChangepointSpike
				if idx > result.Index {
					result.Index = idx
				}
				result.Details[name] = ChangepointFeatureResult{Type: ChangepointSpike, Index: idx}
				continue
			}
		}

		if method == MethodAuto || method == MethodDrop {
			if detected, idx := d.DetectDrop(values, 0); detected {
				result.HasChangepoint = true
				result.Type = ChangepointDrop
				if idx > result.Index {
					result.Index = idx
				}
				result.Details[name] = ChangepointFeatureResult{Type: ChangepointDrop, Index: idx}
				continue
			}
		}

		if method == MethodPatternShift {
			if detected, idx := d.DetectPatternShift(values); detected {
				result.HasChangepoint = true
				result.Type = ChangepointPatternShift
				if idx > result.Index {
					result.Index = idx
				}
				result.Details[name] = ChangepointFeatureResult{Type: ChangepointPatternShift, Index: idx}
			}
		}

		if method == MethodSmoothedDelta {
			if detected, idx := d.DetectSmoothedDelta(values, 10); detected {
				result.HasChangepoint = true
				result.Type = ChangepointSmoothedDelta
				if idx > result.Index {
					result.Index = idx
				}
				result.Details[name] = ChangepointFeatureResult{Type: ChangepointSmoothedDelta, Index: idx}
			}
		}
	}

	return result
}
