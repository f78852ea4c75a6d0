// Package pipeline wires the Window Manager, Preprocessor, Feature
// Engineer, Detector Manager, Comprehensive Detector, and Alert Manager
// into the single per-event flow of spec §5, generalizing the teacher's
// own processLog orchestration from a single window-and-score step into
// the full multi-stage pipeline.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/alert"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/alertsink"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/detect"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/feature"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/preprocess"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/window"
)

// Config bundles every sub-component's configuration.
type Config struct {
	WindowCapacity int

	ClipOutliers    bool
	SmoothingWindow int
	ScalingMethod   preprocess.ScaleMethod

	FeatureWindowSize int

	Detector detect.ManagerConfig

	MaxAlerts           int
	AlertThreshold      float64
	DeduplicationWindow int

	ConsoleSink bool
}

// DefaultConfig mirrors the Python sources' defaults across every stage.
func DefaultConfig() Config {
	return Config{
		WindowCapacity:    window.DefaultCapacity,
		ClipOutliers:      true,
		SmoothingWindow:   5,
		FeatureWindowSize: feature.DefaultWindowSize,
		Detector:          detect.DefaultManagerConfig(),
		MaxAlerts:         alert.DefaultMaxAlerts,
		AlertThreshold:    alert.DefaultThreshold,
	}
}

// Pipeline is the single-writer per-event flow: the exported method
// ProcessEvent must not be called concurrently from more than one
// goroutine at a time (it guards its own state with an internal mutex, but
// that only serializes calls, it doesn't parallelize them).
type Pipeline struct {
	mu sync.Mutex

	windows       *window.Manager
	pre           *preprocess.Preprocessor
	features      *feature.Engineer
	manager       *detect.Manager
	comprehensive *detect.ComprehensiveDetector
	alerts        *alert.AlertManager
	sink          *alertsink.Console
}

// New builds a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		windows:       window.NewManager(cfg.WindowCapacity),
		pre:           preprocess.New(cfg.ClipOutliers, cfg.SmoothingWindow, cfg.ScalingMethod),
		features:      feature.New(cfg.FeatureWindowSize),
		manager:       detect.NewManager(cfg.Detector),
		comprehensive: detect.NewComprehensiveDetector(),
		alerts:        alert.New(cfg.MaxAlerts, cfg.AlertThreshold, cfg.DeduplicationWindow),
	}
	return p
}

// AttachConsoleSink enables writing each generated alert to sink as it's
// created; the processor attaches one only when console_sink is set.
func (p *Pipeline) AttachConsoleSink(sink *alertsink.Console) {
	p.sink = sink
}

// ProcessEvent runs one event through every stage and returns any alerts
// generated (zero, one, or two: the statistical ensemble and the
// rule-based Comprehensive Detector can each independently surface an
// alert for the same event).
func (p *Pipeline) ProcessEvent(ctx context.Context, e event.Event) ([]alert.Alert, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e.Stamp()
	p.windows.AddEvent(e)
	recent := p.windows.GetRecentEvents(0)

	// Preprocessing runs over the same window for its clip/smooth/scale
	// side effects (remembered scaler parameters); like
	// feature_engineering.py, feature extraction itself reads directly
	// from the raw event batch rather than the preprocessed arrays, since
	// the two are independent consumers of the same window in the
	// original source.
	p.pre.PreprocessBatch(recent, nil)
	features := p.features.ExtractFeatures(recent, nil)

	var managerResult detect.ManagerResult
	var comprehensiveResult detect.ComprehensiveResult

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		managerResult = p.manager.Detect(features)
		return nil
	})
	g.Go(func() error {
		comprehensiveResult = p.comprehensive.Detect(e, recent)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline detect: %w", err)
	}

	var alerts []alert.Alert
	if a := p.alerts.CreateAlert(managerDetectionResult(managerResult), &e); a != nil {
		alerts = append(alerts, *a)
	}
	if a := p.alerts.CreateAlert(comprehensiveDetectionResult(comprehensiveResult), &e); a != nil {
		alerts = append(alerts, *a)
	}

	if p.sink != nil {
		for _, a := range alerts {
			p.sink.Write(a)
		}
	}

	return alerts, nil
}

func managerDetectionResult(r detect.ManagerResult) alert.DetectionResult {
	details := make(map[string]any)
	if r.ZScore != nil {
		details["zscore"] = r.ZScore
	}
	if r.IsolationTree != nil {
		details["isolation_forest"] = r.IsolationTree
	}

	out := alert.DetectionResult{
		IsAnomaly:    r.IsAnomaly,
		AnomalyScore: r.AnomalyScore,
		Method:       string(r.Method),
		Details:      details,
	}
	if r.Changepoint != nil {
		details["changepoint"] = r.Changepoint
		out.Changepoint = &alert.Changepoint{
			HasChangepoint: r.Changepoint.HasChangepoint,
			Type:           string(r.Changepoint.Type),
		}
	}
	return out
}

func comprehensiveDetectionResult(r detect.ComprehensiveResult) alert.DetectionResult {
	details := map[string]any{
		"anomaly_type": r.AnomalyType,
		"severity":     r.Severity,
		"anomaly_count": len(r.All),
	}
	return alert.DetectionResult{
		IsAnomaly:    r.IsAnomaly,
		AnomalyScore: r.AnomalyScore,
		Method:       "comprehensive",
		Details:      details,
	}
}

// Stats aggregates introspection across every stage, mirroring each
// Python module's own get_stats.
type Stats struct {
	Window  window.Stats
	Detect  detect.Stats
	Alerts  alert.Stats
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Window: p.windows.Stats(),
		Detect: p.manager.Stats(),
		Alerts: p.alerts.GetStats(),
	}
}
