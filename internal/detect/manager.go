package detect

// ManagerMethod selects which statistical detector(s) the Manager consults.
type ManagerMethod string

const (
	ManagerZScore          ManagerMethod = "zscore"
	ManagerIsolationForest ManagerMethod = "isolation_forest"
	ManagerHybrid          ManagerMethod = "hybrid"
)

// ManagerResult is the Detector Manager's combined output for one event,
// grounded on detector_manager.py's detect.
type ManagerResult struct {
	IsAnomaly     bool
	AnomalyScore  float64
	Method        ManagerMethod
	ZScore        *ZScoreDetection
	IsolationTree *IsolationForestResult
	Changepoint   *ChangepointResult
}

// ManagerConfig mirrors detector_manager.py's anomaly config block.
type ManagerConfig struct {
	Method              ManagerMethod
	FeatureNames        []string
	MinTrainingSamples  int
	ZScoreThreshold     float64
	ZScoreWindow        int
	IForestContamination float64
	IForestEstimators   int
	IForestMaxSamples   int
	ChangepointEnabled  bool
	ChangepointSensitivity float64
	ChangepointMinChange   float64
}

// DefaultManagerConfig matches the Python defaults across every sub-detector.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Method:               ManagerHybrid,
		MinTrainingSamples:   DefaultIForestMinTraining,
		ZScoreThreshold:      DefaultZScoreThreshold,
		ZScoreWindow:         DefaultZScoreWindow,
		IForestContamination: DefaultIForestContamination,
		IForestEstimators:    DefaultIForestEstimators,
		IForestMaxSamples:    DefaultIForestMaxSamples,
		ChangepointEnabled:   true,
		ChangepointSensitivity: DefaultChangepointSensitivity,
		ChangepointMinChange:   DefaultChangepointMinChange,
	}
}

// Manager routes a feature map through Z-Score and/or Isolation Forest per
// Method, plus a change-point overlay once enough training data has
// accumulated, grounded on original_source/src/anomaly/detector_manager.py.
type Manager struct {
	config ManagerConfig

	zscore      *ZScoreDetector
	iforest     *IsolationForestDetector
	changepoint *ChangepointDetector

	trainingData []map[string]float64
}

// NewManager builds a Manager with its sub-detectors wired per config.
func NewManager(config ManagerConfig) *Manager {
	if config.Method == "" {
		config = DefaultManagerConfig()
	}
	m := &Manager{
		config:  config,
		zscore:  NewZScoreDetector(config.ZScoreThreshold, config.ZScoreWindow),
		iforest: NewIsolationForestDetector(config.IForestContamination, config.IForestEstimators, config.IForestMaxSamples),
	}
	if config.ChangepointEnabled {
		// detector_manager.py always constructs its ChangePointDetector with
		// window_size=50 regardless of the configured changepoint window.
		m.changepoint = NewChangepointDetector(config.ChangepointSensitivity, config.ChangepointMinChange, DefaultChangepointWindow)
	}
	return m
}

// AddTrainingData records a feature sample and trains the Isolation Forest
// once MinTrainingSamples is reached (only the first time it becomes
// fitted, matching the Python source's is_fitted guard).
func (m *Manager) AddTrainingData(features map[string]float64) {
	sample := make(map[string]float64, len(features))
	for k, v := range features {
		sample[k] = v
	}
	m.trainingData = append(m.trainingData, sample)

	minSamples := m.config.MinTrainingSamples
	if minSamples <= 0 {
		minSamples = DefaultIForestMinTraining
	}
	if len(m.trainingData) >= minSamples && !m.iforest.IsFitted {
		m.iforest.Fit(m.trainingData, nonEmpty(m.config.FeatureNames))
	}
}

func nonEmpty(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return names
}

// Detect adds features as a new training sample, evaluates it per the
// configured Method, then overlays a change-point pass once at least 100
// training samples are available.
func (m *Manager) Detect(features map[string]float64) ManagerResult {
	m.AddTrainingData(features)

	result := ManagerResult{Method: m.config.Method}

	switch m.config.Method {
	case ManagerZScore:
		z := m.zscore.Detect(features, m.config.FeatureNames)
		result.IsAnomaly = z.IsAnomaly
		result.AnomalyScore = z.AnomalyScore
		result.ZScore = &z

	case ManagerIsolationForest:
		if m.iforest.IsFitted {
			ifr := m.iforest.Detect(features)
			result.IsAnomaly = ifr.IsAnomaly
			result.AnomalyScore = ifr.AnomalyScore
			result.IsolationTree = &ifr
		}

	default: // hybrid
		z := m.zscore.Detect(features, m.config.FeatureNames)
		result.ZScore = &z
		result.IsAnomaly = z.IsAnomaly
		result.AnomalyScore = z.AnomalyScore

		if m.iforest.IsFitted {
			ifr := m.iforest.Detect(features)
			result.IsolationTree = &ifr
			result.IsAnomaly = result.IsAnomaly || ifr.IsAnomaly
			if ifr.AnomalyScore > result.AnomalyScore {
				result.AnomalyScore = ifr.AnomalyScore
			}
		}
	}

	if m.changepoint != nil && len(m.trainingData) >= 100 {
		recent := m.trainingData[len(m.trainingData)-100:]
		featureValues := make(map[string][]float64)
		for _, name := range m.config.FeatureNames {
			if _, ok := recent[0][name]; !ok {
				continue
			}
			values := make([]float64, len(recent))
			for i, sample := range recent {
				values[i] = sample[name]
			}
			featureValues[name] = values
		}
		if len(featureValues) > 0 {
			cp := m.changepoint.Detect(featureValues, MethodAuto)
			result.Changepoint = &cp
		}
	}

	return result
}

// Stats mirrors detector_manager.py's get_stats.
type Stats struct {
	Method          ManagerMethod
	TrainingSamples int
	IForestFitted   bool
}

func (m *Manager) Stats() Stats {
	return Stats{
		Method:          m.config.Method,
		TrainingSamples: len(m.trainingData),
		IForestFitted:   m.iforest.IsFitted,
	}
}
