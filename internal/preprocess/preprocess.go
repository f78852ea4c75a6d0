// Package preprocess implements optional outlier clipping, smoothing, and
// scaling of numeric fields (spec §4.2), grounded on
// original_source/src/processing/preprocess.py.
package preprocess

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

// ClipMethod selects the outlier-clipping strategy.
type ClipMethod string

const (
	ClipIQR    ClipMethod = "iqr"
	ClipZScore ClipMethod = "zscore"
)

// SmoothMethod selects the smoothing strategy.
type SmoothMethod string

const (
	SmoothMovingAverage SmoothMethod = "moving_average"
	SmoothEMA           SmoothMethod = "ema"
)

// ScaleMethod selects the scaling strategy.
type ScaleMethod string

const (
	ScaleNone     ScaleMethod = ""
	ScaleMinMax   ScaleMethod = "minmax"
	ScaleStandard ScaleMethod = "standard"
	ScaleRobust   ScaleMethod = "robust"
)

// ScalerParams is the per-field parameter set remembered after a Scale call,
// so the same transform can be replayed on new data.
type ScalerParams struct {
	Min, Max       float64
	Mean, Std      float64
	Median, IQR    float64
}

// NumericFields is the default set of fields preprocessing operates on.
var NumericFields = []string{"response_time", "cpu_usage", "memory_usage"}

// Preprocessor applies clip -> smooth -> scale, in that order, to numeric
// arrays, and preserves scalar originals for single-event preprocessing.
type Preprocessor struct {
	ClipOutliers    bool
	SmoothingWindow int
	ScalingMethod   ScaleMethod

	scalerParams map[string]ScalerParams
}

// New builds a Preprocessor from the given settings as passed; it fills in
// no defaults (pipeline.DefaultConfig supplies the Python ones: clipping on,
// a smoothing window of 5, and no scaling).
func New(clipOutliers bool, smoothingWindow int, scalingMethod ScaleMethod) *Preprocessor {
	return &Preprocessor{
		ClipOutliers:    clipOutliers,
		SmoothingWindow: smoothingWindow,
		ScalingMethod:   scalingMethod,
		scalerParams:    make(map[string]ScalerParams),
	}
}

func quantile(sorted []float64, q float64) float64 {
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// ClipOutlierValues clips values per method (defaulting multiplier to 1.5).
func (p *Preprocessor) ClipOutlierValues(values []float64, method ClipMethod, multiplier float64) []float64 {
	if len(values) == 0 {
		return values
	}
	if multiplier == 0 {
		multiplier = 1.5
	}

	switch method {
	case ClipZScore:
		mean := stat.Mean(values, nil)
		std := stat.StdDev(values, nil)
		if std == 0 {
			return values
		}
		lower := mean - multiplier*std
		upper := mean + multiplier*std
		out := make([]float64, len(values))
		for i, v := range values {
			z := math.Abs((v - mean) / std)
			if z > multiplier {
				out[i] = clamp(v, lower, upper)
			} else {
				out[i] = v
			}
		}
		return out
	case ClipIQR, "":
		sorted := sortedCopy(values)
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		lower := q1 - multiplier*iqr
		upper := q3 + multiplier*iqr
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = clamp(v, lower, upper)
		}
		return out
	default:
		return values
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Smooth applies a moving-average or EMA smoothing pass.
func (p *Preprocessor) Smooth(values []float64, method SmoothMethod, window int) []float64 {
	if len(values) == 0 {
		return values
	}
	if window <= 0 {
		window = p.SmoothingWindow
	}

	switch method {
	case SmoothEMA:
		if len(values) < 2 {
			return values
		}
		alpha := 2.0 / (float64(window) + 1.0)
		out := make([]float64, len(values))
		out[0] = values[0]
		for i := 1; i < len(values); i++ {
			out[i] = alpha*values[i] + (1-alpha)*out[i-1]
		}
		return out
	case SmoothMovingAverage, "":
		if len(values) < window {
			return values
		}
		return sameConvolveMovingAverage(values, window)
	default:
		return values
	}
}

// sameConvolveMovingAverage mirrors numpy.convolve(values, ones(w)/w, mode='same').
func sameConvolveMovingAverage(values []float64, window int) []float64 {
	n := len(values)
	kernel := make([]float64, window)
	for i := range kernel {
		kernel[i] = 1.0 / float64(window)
	}
	full := make([]float64, n+window-1)
	for i := 0; i < n; i++ {
		for j := 0; j < window; j++ {
			full[i+j] += values[i] * kernel[j]
		}
	}
	// 'same' slices the full convolution centered on the input length.
	start := (window - 1) / 2
	out := make([]float64, n)
	copy(out, full[start:start+n])
	return out
}

// Scale rescales values and remembers the field's scaler parameters.
// Degenerate inputs (zero range/std/IQR) return sentinel arrays instead of NaN.
func (p *Preprocessor) Scale(values []float64, fieldName string, method ScaleMethod) []float64 {
	if len(values) == 0 {
		return values
	}
	if method == "" {
		method = p.ScalingMethod
	}
	if method == "" {
		return values
	}

	out := make([]float64, len(values))
	switch method {
	case ScaleMinMax:
		min, max := minMax(values)
		if max == min {
			return out // zeros
		}
		p.scalerParams[fieldName] = ScalerParams{Min: min, Max: max}
		for i, v := range values {
			out[i] = (v - min) / (max - min)
		}
		return out
	case ScaleStandard:
		mean := stat.Mean(values, nil)
		std := stat.StdDev(values, nil)
		if std == 0 {
			for i := range out {
				out[i] = 0.5
			}
			return out
		}
		p.scalerParams[fieldName] = ScalerParams{Mean: mean, Std: std}
		for i, v := range values {
			out[i] = (v - mean) / std
		}
		return out
	case ScaleRobust:
		sorted := sortedCopy(values)
		median := quantile(sorted, 0.5)
		q75 := quantile(sorted, 0.75)
		q25 := quantile(sorted, 0.25)
		iqr := q75 - q25
		if iqr == 0 {
			return out // zeros
		}
		p.scalerParams[fieldName] = ScalerParams{Median: median, IQR: iqr}
		for i, v := range values {
			out[i] = (v - median) / iqr
		}
		return out
	default:
		return values
	}
}

func minMax(values []float64) (float64, float64) {
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

// PreprocessEvent returns a single event's fields as a map and preserves
// scalar originals under "<field>_original", matching preprocess.py's
// preprocess_event: single scalar values pass through unmodified since
// they're handled at the window level, not individually. Extension fields
// (Extra) are not included, so array-valued fields are not transformed.
func (p *Preprocessor) PreprocessEvent(e event.Event) map[string]any {
	processed := map[string]any{
		"endpoint":    e.Endpoint,
		"status_code": e.StatusCode,
		"timestamp":   e.TimestampString(),
	}
	if v, ok := e.ResponseTime.Get(); ok {
		processed["response_time_original"] = v
		processed["response_time"] = v
	}
	if v, ok := e.CPUUsage.Get(); ok {
		processed["cpu_usage_original"] = v
		processed["cpu_usage"] = v
	}
	if v, ok := e.MemoryUsage.Get(); ok {
		processed["memory_usage_original"] = v
		processed["memory_usage"] = v
	}
	return processed
}

// PreprocessBatch runs clip -> smooth -> scale over each configured field's
// column across a slice of events, replacing missing values with the column
// mean (or 0 if every value in the column is missing), matching
// preprocess_batch's NaN handling.
func (p *Preprocessor) PreprocessBatch(events []event.Event, fields []string) map[string][]float64 {
	if len(events) == 0 {
		return map[string][]float64{}
	}
	if fields == nil {
		fields = NumericFields
	}

	out := make(map[string][]float64, len(fields))
	for _, field := range fields {
		values, present := extractColumn(events, field)
		if len(values) == 0 {
			continue
		}
		values = fillMissing(values, present)

		if p.ClipOutliers {
			values = p.ClipOutlierValues(values, ClipIQR, 1.5)
		}
		if p.SmoothingWindow > 1 && len(values) > p.SmoothingWindow {
			values = p.Smooth(values, SmoothMovingAverage, p.SmoothingWindow)
		}
		if p.ScalingMethod != "" {
			values = p.Scale(values, field, p.ScalingMethod)
		}
		out[field] = values
	}
	return out
}

func extractColumn(events []event.Event, field string) (values []float64, present []bool) {
	values = make([]float64, len(events))
	present = make([]bool, len(events))
	for i, e := range events {
		var opt event.Option[float64]
		switch field {
		case "response_time":
			opt = e.ResponseTime
		case "cpu_usage":
			opt = e.CPUUsage
		case "memory_usage":
			opt = e.MemoryUsage
		default:
			continue
		}
		if v, ok := opt.Get(); ok {
			values[i] = v
			present[i] = true
		}
	}
	return values, present
}

func fillMissing(values []float64, present []bool) []float64 {
	sum, count := 0.0, 0
	for i, ok := range present {
		if ok {
			sum += values[i]
			count++
		}
	}
	fill := 0.0
	if count > 0 {
		fill = sum / float64(count)
	}
	out := make([]float64, len(values))
	for i := range values {
		if present[i] {
			out[i] = values[i]
		} else {
			out[i] = fill
		}
	}
	return out
}

// ScalerParamsFor returns the remembered scaler parameters for a field, if any.
func (p *Preprocessor) ScalerParamsFor(field string) (ScalerParams, bool) {
	params, ok := p.scalerParams[field]
	return params, ok
}
