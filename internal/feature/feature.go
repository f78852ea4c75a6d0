// Package feature implements the Feature Engineer of spec §4.3: request
// rate, error rate, and per-field rolling statistics, grounded on
// original_source/src/feature/feature_engineering.py.
package feature

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

// DefaultWindowSize matches feature_engineering.py's FeatureEngineer default.
const DefaultWindowSize = 100

// Fields is the default set of numeric fields to derive features from.
var Fields = []string{"response_time", "cpu_usage", "memory_usage"}

// Engineer computes rolling statistical features over a batch of events.
type Engineer struct {
	WindowSize int
}

// New builds an Engineer with the given rolling window size (0 -> DefaultWindowSize).
func New(windowSize int) *Engineer {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Engineer{WindowSize: windowSize}
}

// CalculateRPS estimates requests-per-second from event timestamps, falling
// back to len(events)/timeWindow when fewer than two timestamps parse. An
// empty slice yields 0 and a single event always yields 1.0.
func (e *Engineer) CalculateRPS(events []event.Event, timeWindow float64) float64 {
	if len(events) == 0 {
		return 0.0
	}
	if len(events) < 2 {
		return 1.0
	}
	if timeWindow <= 0 {
		timeWindow = 1.0
	}

	var timestamps []float64
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			continue
		}
		timestamps = append(timestamps, float64(ev.Timestamp.UnixNano())/1e9)
	}
	if len(timestamps) < 2 {
		return float64(len(events)) / timeWindow
	}

	min, max := timestamps[0], timestamps[0]
	for _, t := range timestamps[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	span := max - min
	if span == 0 {
		return float64(len(events)) / timeWindow
	}
	denom := span
	if timeWindow > denom {
		denom = timeWindow
	}
	return float64(len(events)) / denom
}

// CalculateErrorRate returns the fraction of events with a numeric
// status_code >= 400, out of events carrying a numeric status_code at all.
func (e *Engineer) CalculateErrorRate(events []event.Event) float64 {
	if len(events) == 0 {
		return 0.0
	}
	var errCount, total int
	for _, ev := range events {
		if _, ok := ev.StatusCode.Get(); ok {
			total++
			if ev.IsNumericError() {
				errCount++
			}
		}
	}
	if total == 0 {
		return 0.0
	}
	return float64(errCount) / float64(total)
}

// RollingStats holds per-index rolling mean/std/min/max/var, matching
// feature_engineering.py's calculate_rolling_stats shape.
type RollingStats struct {
	Mean, Std, Min, Max, Var []float64
}

// CalculateRollingStats computes a centered rolling window over values. When
// values is shorter than window, every index gets the whole-slice statistic
// (matching the Python fallback branch).
func (e *Engineer) CalculateRollingStats(values []float64, window int) RollingStats {
	if window <= 0 {
		window = e.WindowSize
	}
	n := len(values)
	if n < window {
		mean := stat.Mean(values, nil)
		std := stat.StdDev(values, nil)
		min, max := minMax(values)
		v := std * std
		return RollingStats{
			Mean: fill(n, mean), Std: fill(n, std),
			Min: fill(n, min), Max: fill(n, max), Var: fill(n, v),
		}
	}

	out := RollingStats{
		Mean: make([]float64, n), Std: make([]float64, n),
		Min: make([]float64, n), Max: make([]float64, n), Var: make([]float64, n),
	}
	wholeMean := stat.Mean(values, nil)
	wholeStd := stat.StdDev(values, nil)
	wholeMin, wholeMax := minMax(values)
	wholeVar := wholeStd * wholeStd

	left := (window - 1) / 2
	right := window - 1 - left
	for i := 0; i < n; i++ {
		lo := i - left
		hi := i + right
		if lo < 0 || hi >= n {
			// pandas centered rolling with min_periods=window leaves edges
			// as NaN, filled with the whole-series statistic.
			out.Mean[i] = wholeMean
			out.Std[i] = wholeStd
			out.Min[i] = wholeMin
			out.Max[i] = wholeMax
			out.Var[i] = wholeVar
			continue
		}
		slice := values[lo : hi+1]
		m := stat.Mean(slice, nil)
		s := stat.StdDev(slice, nil)
		mn, mx := minMax(slice)
		out.Mean[i] = m
		out.Std[i] = s
		out.Min[i] = mn
		out.Max[i] = mx
		out.Var[i] = s * s
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// CalculateSpikeScore returns a per-index z-score against the rolling mean/std.
func (e *Engineer) CalculateSpikeScore(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	rs := e.CalculateRollingStats(values, window)
	for i, v := range values {
		if rs.Std[i] > 0 {
			out[i] = (v - rs.Mean[i]) / rs.Std[i]
		}
	}
	return out
}

// CalculateEMA returns the exponential moving average of values.
func (e *Engineer) CalculateEMA(values []float64, window int) []float64 {
	n := len(values)
	if n == 0 {
		return values
	}
	if window <= 0 {
		window = e.WindowSize
	}
	alpha := 2.0 / (float64(window) + 1.0)
	out := make([]float64, n)
	out[0] = values[0]
	for i := 1; i < n; i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ExtractFeatures derives the full feature set from a batch of events:
// rps, error_rate, event_count, and per-field mean/std/min/max/median plus
// (when the field has >= 2 numeric samples) rolling_mean/rolling_std/
// spike_score/ema taken at the most recent sample.
func (e *Engineer) ExtractFeatures(events []event.Event, fields []string) map[string]float64 {
	if len(events) == 0 {
		return map[string]float64{}
	}
	if fields == nil {
		fields = Fields
	}

	features := map[string]float64{
		"rps":         e.CalculateRPS(events, 1),
		"error_rate":  e.CalculateErrorRate(events),
		"event_count": float64(len(events)),
	}

	for _, field := range fields {
		values := numericColumn(events, field)
		if len(values) == 0 {
			continue
		}
		features[field+"_mean"] = stat.Mean(values, nil)
		features[field+"_std"] = stat.StdDev(values, nil)
		mn, mx := minMax(values)
		features[field+"_min"] = mn
		features[field+"_max"] = mx
		features[field+"_median"] = median(values)

		if len(values) >= 2 {
			rs := e.CalculateRollingStats(values, e.WindowSize)
			last := len(values) - 1
			features[field+"_rolling_mean"] = rs.Mean[last]
			features[field+"_rolling_std"] = rs.Std[last]
			features[field+"_spike_score"] = e.CalculateSpikeScore(values, e.WindowSize)[last]
			features[field+"_ema"] = e.CalculateEMA(values, e.WindowSize)[last]
		}
	}
	return features
}

func numericColumn(events []event.Event, field string) []float64 {
	var out []float64
	for _, ev := range events {
		var opt event.Option[float64]
		switch field {
		case "response_time":
			opt = ev.ResponseTime
		case "cpu_usage":
			opt = ev.CPUUsage
		case "memory_usage":
			opt = ev.MemoryUsage
		default:
			continue
		}
		if v, ok := opt.Get(); ok {
			out = append(out, v)
		}
	}
	return out
}

// SingleEventFeatures is the result of ExtractSingleEventFeatures: the
// current event's raw numeric fields plus, when historical context is
// available, a z-score/deviation against that history.
type SingleEventFeatures struct {
	Timestamp  string
	Endpoint   string
	StatusCode int
	Values     map[string]float64
	ZScores    map[string]float64
	Deviations map[string]float64
	IsError    bool
}

// ExtractSingleEventFeatures derives features for one event, optionally
// comparing it against historical_events the way
// feature_engineering.py's extract_single_event_features does.
func (e *Engineer) ExtractSingleEventFeatures(ev event.Event, historical []event.Event) SingleEventFeatures {
	out := SingleEventFeatures{
		Timestamp:  ev.TimestampString(),
		Endpoint:   ev.Endpoint,
		StatusCode: ev.StatusCodeOrDefault(),
		Values:     make(map[string]float64),
		ZScores:    make(map[string]float64),
		Deviations: make(map[string]float64),
		IsError:    ev.IsNumericError(),
	}

	var histFeatures map[string]float64
	if len(historical) > 0 {
		histFeatures = e.ExtractFeatures(historical, nil)
	}

	for _, field := range Fields {
		var opt event.Option[float64]
		switch field {
		case "response_time":
			opt = ev.ResponseTime
		case "cpu_usage":
			opt = ev.CPUUsage
		case "memory_usage":
			opt = ev.MemoryUsage
		}
		v, ok := opt.Get()
		if !ok {
			continue
		}
		out.Values[field] = v

		if histFeatures != nil {
			histMean, meanOK := histFeatures[field+"_mean"]
			if !meanOK {
				histMean = v
			}
			histStd, stdOK := histFeatures[field+"_std"]
			if !stdOK {
				histStd = 1.0
			}
			if histStd > 0 {
				out.ZScores[field] = (v - histMean) / histStd
			}
			out.Deviations[field] = v - histMean
		}
	}
	return out
}

// clampAbs caps v to [-limit, limit], mapping NaN and ±Inf to 0.
func clampAbs(v, limit float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
