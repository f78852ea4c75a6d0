package processor

import (
	"context"
	"os"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/alert"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/alertsink"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/detect"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/pipeline"
	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/preprocess"
)

func init() {
	configSpec := service.NewConfigSpec().
		Beta().
		Categories("Integration").
		Summary("Detects anomalies in a real-time telemetry stream using a sliding-window feature pipeline and a four-detector ensemble").
		Description(`
This processor consumes one telemetry event per message, maintains a sliding
window of recent events, derives request-rate/error-rate/rolling-statistic
features, and runs them through a Z-Score detector, an Isolation Forest, a
Change-Point detector, and a rule-based Comprehensive Detector. Any resulting
alert is emitted as a structured output message; events that produce no
alert are routed to the normal topic unchanged.
`).
		Field(service.NewIntField("window_capacity").
			Description("Number of recent events the sliding window retains").
			Default(1000)).
		Field(service.NewBoolField("clip_outliers").
			Description("Clip outlier values (IQR method) before scaling/smoothing").
			Default(true)).
		Field(service.NewIntField("smoothing_window").
			Description("Moving-average smoothing window size").
			Default(5)).
		Field(service.NewStringField("scaling_method").
			Description("Feature scaling method: '', 'minmax', 'standard', or 'robust'").
			Default("")).
		Field(service.NewIntField("feature_window_size").
			Description("Rolling window size used by the feature engineer").
			Default(100)).
		Field(service.NewObjectField("detector",
			service.NewStringField("method").
				Description("Detection method: 'zscore', 'isolation_forest', or 'hybrid'").
				Default("hybrid"),
			service.NewStringListField("features").
				Description("Feature names the detectors evaluate").
				Default([]string{
					"rps", "error_rate",
					"response_time_mean", "response_time_std",
					"cpu_usage_mean", "memory_usage_mean",
				}),
			service.NewIntField("min_training_samples").
				Description("Samples required before the Isolation Forest trains").
				Default(50),
			service.NewObjectField("zscore",
				service.NewFloatField("threshold").Description("Z-score threshold").Default(3.0),
				service.NewIntField("window_size").Description("Rolling history size").Default(100),
			),
			service.NewObjectField("isolation_forest",
				service.NewFloatField("contamination").Description("Expected outlier fraction").Default(0.1),
				service.NewIntField("n_estimators").Description("Number of isolation trees").Default(100),
				service.NewIntField("max_samples").Description("Max samples per tree").Default(256),
			),
			service.NewObjectField("changepoint",
				service.NewBoolField("enabled").Description("Enable the change-point overlay").Default(true),
				service.NewFloatField("sensitivity").Description("Change-point sensitivity").Default(0.3),
				service.NewFloatField("min_change").Description("Minimum change ratio").Default(0.2),
			),
		)).
		Field(service.NewObjectField("alert",
			service.NewIntField("max_alerts").Description("Maximum retained alerts").Default(1000),
			service.NewFloatField("threshold").Description("Anomaly score threshold to alert").Default(0.7),
			service.NewIntField("deduplication_window").Description("Stored on the alert manager but not used for suppression; duplicates are detected against the last 100 alert fingerprints").Default(60),
		)).
		Field(service.NewStringField("alert_topic").
			Description("Output topic meta value for messages carrying an alert").
			Default("telemetry-alerts")).
		Field(service.NewStringField("normal_topic").
			Description("Output topic meta value for events that produced no alert").
			Default("telemetry-normal")).
		Field(service.NewBoolField("console_sink").
			Description("Also print each alert to stdout, colorized by severity").
			Default(false))

	constructor := func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
		return newTelemetryAnomalyPipeline(conf, mgr)
	}

	if err := service.RegisterProcessor("telemetry_anomaly_pipeline", configSpec, constructor); err != nil {
		panic(err)
	}
}

//------------------------------------------------------------------------------

// TelemetryAnomalyPipeline is the benthos Processor wrapping
// internal/pipeline.Pipeline, generalized from the teacher's
// FirewallAnomalyDetector (one Redis-backed sliding window and a heuristic
// score) into the full Window Manager -> Preprocessor -> Feature Engineer
// -> Detector ensemble -> Alert Manager flow.
type TelemetryAnomalyPipeline struct {
	logger  *service.Logger
	metrics *service.Metrics

	pipeline *pipeline.Pipeline

	alertTopic  string
	normalTopic string

	eventsProcessed *service.MetricCounter
	alertsRaised    *service.MetricCounter
	parseErrors     *service.MetricCounter
}

func newTelemetryAnomalyPipeline(conf *service.ParsedConfig, mgr *service.Resources) (*TelemetryAnomalyPipeline, error) {
	windowCapacity, err := conf.FieldInt("window_capacity")
	if err != nil {
		return nil, err
	}
	clipOutliers, err := conf.FieldBool("clip_outliers")
	if err != nil {
		return nil, err
	}
	smoothingWindow, err := conf.FieldInt("smoothing_window")
	if err != nil {
		return nil, err
	}
	scalingMethod, err := conf.FieldString("scaling_method")
	if err != nil {
		return nil, err
	}
	featureWindowSize, err := conf.FieldInt("feature_window_size")
	if err != nil {
		return nil, err
	}

	detectorMethod, err := conf.FieldString("detector", "method")
	if err != nil {
		return nil, err
	}
	featureNames, err := conf.FieldStringList("detector", "features")
	if err != nil {
		return nil, err
	}
	minTrainingSamples, err := conf.FieldInt("detector", "min_training_samples")
	if err != nil {
		return nil, err
	}
	zscoreThreshold, err := conf.FieldFloat("detector", "zscore", "threshold")
	if err != nil {
		return nil, err
	}
	zscoreWindow, err := conf.FieldInt("detector", "zscore", "window_size")
	if err != nil {
		return nil, err
	}
	iforestContamination, err := conf.FieldFloat("detector", "isolation_forest", "contamination")
	if err != nil {
		return nil, err
	}
	iforestEstimators, err := conf.FieldInt("detector", "isolation_forest", "n_estimators")
	if err != nil {
		return nil, err
	}
	iforestMaxSamples, err := conf.FieldInt("detector", "isolation_forest", "max_samples")
	if err != nil {
		return nil, err
	}
	changepointEnabled, err := conf.FieldBool("detector", "changepoint", "enabled")
	if err != nil {
		return nil, err
	}
	changepointSensitivity, err := conf.FieldFloat("detector", "changepoint", "sensitivity")
	if err != nil {
		return nil, err
	}
	changepointMinChange, err := conf.FieldFloat("detector", "changepoint", "min_change")
	if err != nil {
		return nil, err
	}

	maxAlerts, err := conf.FieldInt("alert", "max_alerts")
	if err != nil {
		return nil, err
	}
	alertThreshold, err := conf.FieldFloat("alert", "threshold")
	if err != nil {
		return nil, err
	}
	deduplicationWindow, err := conf.FieldInt("alert", "deduplication_window")
	if err != nil {
		return nil, err
	}

	alertTopic, err := conf.FieldString("alert_topic")
	if err != nil {
		return nil, err
	}
	normalTopic, err := conf.FieldString("normal_topic")
	if err != nil {
		return nil, err
	}
	consoleSink, err := conf.FieldBool("console_sink")
	if err != nil {
		return nil, err
	}

	cfg := pipeline.Config{
		WindowCapacity:    windowCapacity,
		ClipOutliers:      clipOutliers,
		SmoothingWindow:   smoothingWindow,
		ScalingMethod:     preprocess.ScaleMethod(scalingMethod),
		FeatureWindowSize: featureWindowSize,
		Detector: detect.ManagerConfig{
			Method:                 detect.ManagerMethod(detectorMethod),
			FeatureNames:           featureNames,
			MinTrainingSamples:     minTrainingSamples,
			ZScoreThreshold:        zscoreThreshold,
			ZScoreWindow:           zscoreWindow,
			IForestContamination:   iforestContamination,
			IForestEstimators:      iforestEstimators,
			IForestMaxSamples:      iforestMaxSamples,
			ChangepointEnabled:     changepointEnabled,
			ChangepointSensitivity: changepointSensitivity,
			ChangepointMinChange:   changepointMinChange,
		},
		MaxAlerts:           maxAlerts,
		AlertThreshold:      alertThreshold,
		DeduplicationWindow: deduplicationWindow,
	}

	p := pipeline.New(cfg)
	if consoleSink {
		p.AttachConsoleSink(alertsink.NewConsole(os.Stdout))
	}

	t := &TelemetryAnomalyPipeline{
		logger:          mgr.Logger(),
		metrics:         mgr.Metrics(),
		pipeline:        p,
		alertTopic:      alertTopic,
		normalTopic:     normalTopic,
		eventsProcessed: mgr.Metrics().NewCounter("events_processed"),
		alertsRaised:    mgr.Metrics().NewCounter("alerts_raised"),
		parseErrors:     mgr.Metrics().NewCounter("parse_errors"),
	}

	t.logger.Infof("telemetry anomaly pipeline started: method=%s window_capacity=%d", detectorMethod, windowCapacity)

	return t, nil
}

// Process parses one telemetry event out of m, runs it through the
// pipeline, and emits one message per alert raised plus (when no alert
// fired) a single passthrough message tagged with the normal topic.
func (t *TelemetryAnomalyPipeline) Process(ctx context.Context, m *service.Message) (service.MessageBatch, error) {
	raw, err := m.AsBytes()
	if err != nil {
		return nil, err
	}

	ev, err := event.ParseJSON(raw)
	if err != nil {
		t.parseErrors.Incr(1)
		t.logger.Warnf("failed to parse telemetry event: %v", err)
		return nil, err
	}

	t.eventsProcessed.Incr(1)

	alerts, err := t.pipeline.ProcessEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	if len(alerts) == 0 {
		passthrough := service.NewMessage(raw)
		passthrough.MetaSet("topic", t.normalTopic)
		return service.MessageBatch{passthrough}, nil
	}

	var out service.MessageBatch
	for _, a := range alerts {
		t.alertsRaised.Incr(1)
		msg := service.NewMessage(nil)
		msg.SetStructured(alertPayload(a))
		msg.MetaSet("topic", t.alertTopic)
		msg.MetaSet("level", string(a.Level))
		out = append(out, msg)
	}
	return out, nil
}

func alertPayload(a alert.Alert) map[string]any {
	return map[string]any{
		"level":        a.Level,
		"message":      a.Message,
		"details":      a.Details,
		"timestamp":    a.Timestamp,
		"acknowledged": a.Acknowledged,
	}
}

func (t *TelemetryAnomalyPipeline) Close(ctx context.Context) error {
	return nil
}
