package detect

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Isolation Forest (Liu, Ting & Zhou, 2008): anomalies are points that
// isolate in fewer random-split steps than normal points. No isolation-
// forest library is available anywhere in the retrieved example pack (and
// original_source/'s iforest_detector.py was not among the retrieved
// files), so the tree ensemble itself is hand-written here; only the
// contamination-quantile threshold below reuses gonum/stat.

// DefaultIForestContamination/Estimators/MaxSamples/MinTrainingSamples match
// detector_manager.py's IsolationForestDetector construction and
// min_training_samples gate.
const (
	DefaultIForestContamination  = 0.1
	DefaultIForestEstimators     = 100
	DefaultIForestMaxSamples     = 256
	DefaultIForestMinTraining    = 50
)

type iTreeNode struct {
	isLeaf       bool
	size         int // number of samples that reached this leaf (for path-length correction)
	splitFeature int
	splitValue   float64
	left, right  *iTreeNode
}

// averagePathLength is c(n): the expected path length of an unsuccessful
// BST search over n points, used to normalize raw path lengths.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	return 2*(math.Log(float64(n-1))+0.5772156649) - 2*float64(n-1)/float64(n)
}

func buildTree(data [][]float64, depth, maxDepth int, rng *rand.Rand) *iTreeNode {
	n := len(data)
	if n <= 1 || depth >= maxDepth {
		return &iTreeNode{isLeaf: true, size: n}
	}

	numFeatures := len(data[0])
	feature := rng.Intn(numFeatures)

	min, max := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		v := row[feature]
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		return &iTreeNode{isLeaf: true, size: n}
	}

	splitValue := min + rng.Float64()*(max-min)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iTreeNode{isLeaf: true, size: n}
	}

	return &iTreeNode{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         buildTree(left, depth+1, maxDepth, rng),
		right:        buildTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *iTreeNode, sample []float64, depth int) float64 {
	if node.isLeaf {
		return float64(depth) + averagePathLength(node.size)
	}
	if sample[node.splitFeature] < node.splitValue {
		return pathLength(node.left, sample, depth+1)
	}
	return pathLength(node.right, sample, depth+1)
}

// IsolationForestResult is the per-event output of Detect.
type IsolationForestResult struct {
	IsAnomaly    bool
	AnomalyScore float64
	PathLength   float64
}

// IsolationForestDetector is an ensemble of isolation trees fit over
// contiguous feature vectors, grounded on detector_manager.py's usage of
// IsolationForestDetector (contamination/n_estimators/max_samples) with the
// algorithm itself following Liu/Ting/Zhou since no reference implementation
// was retrieved.
type IsolationForestDetector struct {
	Contamination float64
	NEstimators   int
	MaxSamples    int

	IsFitted     bool
	FeatureNames []string
	trees        []*iTreeNode
	sampleSize   int
	threshold    float64
	rng          *rand.Rand
}

// NewIsolationForestDetector builds a detector with the Python defaults
// when zero values are passed.
func NewIsolationForestDetector(contamination float64, nEstimators, maxSamples int) *IsolationForestDetector {
	if contamination <= 0 {
		contamination = DefaultIForestContamination
	}
	if nEstimators <= 0 {
		nEstimators = DefaultIForestEstimators
	}
	if maxSamples <= 0 {
		maxSamples = DefaultIForestMaxSamples
	}
	return &IsolationForestDetector{
		Contamination: contamination,
		NEstimators:   nEstimators,
		MaxSamples:    maxSamples,
		rng:           rand.New(rand.NewSource(1)),
	}
}

// Fit builds NEstimators trees, each over a random subsample (without
// replacement) of up to MaxSamples rows, and derives an anomaly-score
// threshold from the Contamination fraction of the training scores.
func (d *IsolationForestDetector) Fit(trainingData []map[string]float64, featureNames []string) {
	if len(trainingData) == 0 {
		return
	}
	if featureNames == nil {
		featureNames = sortedKeys(trainingData[0])
	}
	d.FeatureNames = featureNames

	rows := make([][]float64, len(trainingData))
	for i, sample := range trainingData {
		row := make([]float64, len(featureNames))
		for j, name := range featureNames {
			row[j] = sample[name]
		}
		rows[i] = row
	}

	sampleSize := d.MaxSamples
	if sampleSize > len(rows) {
		sampleSize = len(rows)
	}
	d.sampleSize = sampleSize
	maxDepth := int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	d.trees = make([]*iTreeNode, d.NEstimators)
	for i := 0; i < d.NEstimators; i++ {
		subsample := sampleRows(rows, sampleSize, d.rng)
		d.trees[i] = buildTree(subsample, 0, maxDepth, d.rng)
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = d.scoreRow(row)
	}
	d.threshold = contaminationThreshold(scores, d.Contamination)
	d.IsFitted = true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sampleRows(rows [][]float64, size int, rng *rand.Rand) [][]float64 {
	perm := rng.Perm(len(rows))
	out := make([][]float64, size)
	for i := 0; i < size; i++ {
		out[i] = rows[perm[i]]
	}
	return out
}

// scoreRow computes sklearn-style anomaly score: 2^(-E(h(x))/c(sampleSize)).
// Higher values (closer to 1) indicate stronger anomalies.
func (d *IsolationForestDetector) scoreRow(row []float64) float64 {
	sum := 0.0
	for _, tree := range d.trees {
		sum += pathLength(tree, row, 0)
	}
	meanPath := sum / float64(len(d.trees))
	c := averagePathLength(d.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -meanPath/c)
}

// contaminationThreshold returns the score at the (1-contamination)
// quantile, so the top `contamination` fraction of training scores are
// flagged as anomalies — sklearn's IsolationForest does the analogous thing
// via its offset_ parameter.
func contaminationThreshold(scores []float64, contamination float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return stat.Quantile(1-contamination, stat.Empirical, sorted, nil)
}

// Detect scores a single feature map and compares it against the fitted
// threshold.
func (d *IsolationForestDetector) Detect(features map[string]float64) IsolationForestResult {
	if !d.IsFitted {
		return IsolationForestResult{}
	}
	row := make([]float64, len(d.FeatureNames))
	for i, name := range d.FeatureNames {
		row[i] = features[name]
	}
	score := d.scoreRow(row)
	return IsolationForestResult{
		IsAnomaly:    score >= d.threshold,
		AnomalyScore: score,
	}
}
