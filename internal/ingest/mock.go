package ingest

import (
	"context"
	"math/rand"
	"time"

	json "github.com/goccy/go-json"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

// DefaultEventsPerSecond/AnomalyProbability match mock_stream.py's
// MockStreamGenerator defaults.
const (
	DefaultEventsPerSecond   = 10
	DefaultAnomalyProbability = 0.05
)

var mockEndpoints = []string{
	"/api/users",
	"/api/products",
	"/api/orders",
	"/api/payments",
	"/api/auth",
	"/api/search",
	"/api/recommendations",
}

var mockStatusCodes = []int{200, 201, 400, 404, 500}
var mockStatusWeights = []int{70, 5, 10, 10, 5}

// MockGenerator synthesizes a telemetry stream with an occasional injected
// anomaly, grounded on original_source/src/ingest/mock_stream.py.
type MockGenerator struct {
	EventsPerSecond    int
	AnomalyProbability float64
	Duration           time.Duration

	rng       *rand.Rand
	startTime time.Time
	count     int
}

// NewMockGenerator builds a generator with Python's defaults when zero
// values are passed. duration <= 0 means run forever.
func NewMockGenerator(eventsPerSecond int, anomalyProbability float64, duration time.Duration) *MockGenerator {
	if eventsPerSecond <= 0 {
		eventsPerSecond = DefaultEventsPerSecond
	}
	if anomalyProbability <= 0 {
		anomalyProbability = DefaultAnomalyProbability
	}
	return &MockGenerator{
		EventsPerSecond:    eventsPerSecond,
		AnomalyProbability: anomalyProbability,
		Duration:           duration,
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockGenerator) Connect(ctx context.Context) error {
	m.startTime = time.Now()
	return nil
}

func (m *MockGenerator) Close(ctx context.Context) error { return nil }

func (m *MockGenerator) interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(m.EventsPerSecond))
}

// Read blocks for one inter-event interval, then returns one synthesized
// event. Returns context.Canceled once Duration has elapsed.
func (m *MockGenerator) Read(ctx context.Context) ([]byte, error) {
	if m.Duration > 0 && time.Since(m.startTime) >= m.Duration {
		return nil, context.Canceled
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.interval()):
	}

	var e event.Event
	if m.rng.Float64() < m.AnomalyProbability {
		e = m.generateAnomaly()
	} else {
		e = m.generateNormal()
	}
	m.count++

	return json.Marshal(mockWireEventFrom(e))
}

func (m *MockGenerator) randomEndpoint() string {
	return mockEndpoints[m.rng.Intn(len(mockEndpoints))]
}

func weightedChoice(rng *rand.Rand, values []int, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	r := rng.Intn(total)
	for i, w := range weights {
		if r < w {
			return values[i]
		}
		r -= w
	}
	return values[len(values)-1]
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

func (m *MockGenerator) generateNormal() event.Event {
	return event.Event{
		Timestamp:    time.Now(),
		Endpoint:     m.randomEndpoint(),
		StatusCode:   event.Some(weightedChoice(m.rng, mockStatusCodes, mockStatusWeights)),
		ResponseTime: event.Some(uniform(m.rng, 50, 200)),
		CPUUsage:     event.Some(uniform(m.rng, 20, 60)),
		MemoryUsage:  event.Some(uniform(m.rng, 30, 70)),
		IsAnomaly:    event.Some(false),
	}
}

func (m *MockGenerator) generateAnomaly() event.Event {
	endpoint := m.randomEndpoint()
	kinds := []string{"spike", "drop", "error_spike"}
	kind := kinds[m.rng.Intn(len(kinds))]

	var e event.Event
	e.Timestamp = time.Now()
	e.Endpoint = endpoint
	e.IsAnomaly = event.Some(true)

	switch kind {
	case "spike":
		e.StatusCode = event.Some(200)
		e.ResponseTime = event.Some(uniform(m.rng, 1000, 5000))
		e.CPUUsage = event.Some(uniform(m.rng, 80, 95))
		e.MemoryUsage = event.Some(uniform(m.rng, 85, 95))
	case "drop":
		e.StatusCode = event.Some(200)
		e.ResponseTime = event.Some(uniform(m.rng, 10, 30))
		e.CPUUsage = event.Some(uniform(m.rng, 5, 15))
		e.MemoryUsage = event.Some(uniform(m.rng, 10, 20))
	default: // error_spike
		errorCodes := []int{500, 503, 504}
		e.StatusCode = event.Some(errorCodes[m.rng.Intn(len(errorCodes))])
		e.ResponseTime = event.Some(uniform(m.rng, 3000, 10000))
		e.CPUUsage = event.Some(uniform(m.rng, 70, 90))
		e.MemoryUsage = event.Some(uniform(m.rng, 75, 90))
	}
	return e
}

// mockWireEvent renders an Event to the canonical wire shape (exported
// field names matching spec §3), since event.Event itself marshals its
// Timestamp as "-" (callers normally only decode, never encode, events).
type mockWireEvent struct {
	Timestamp    string             `json:"timestamp"`
	Endpoint     string             `json:"endpoint"`
	StatusCode   event.Option[int]  `json:"status_code"`
	ResponseTime event.Option[float64] `json:"response_time"`
	CPUUsage     event.Option[float64] `json:"cpu_usage"`
	MemoryUsage  event.Option[float64] `json:"memory_usage"`
	IsAnomaly    event.Option[bool] `json:"is_anomaly"`
}

func mockWireEventFrom(e event.Event) mockWireEvent {
	return mockWireEvent{
		Timestamp:    e.TimestampString(),
		Endpoint:     e.Endpoint,
		StatusCode:   e.StatusCode,
		ResponseTime: e.ResponseTime,
		CPUUsage:     e.CPUUsage,
		MemoryUsage:  e.MemoryUsage,
		IsAnomaly:    e.IsAnomaly,
	}
}
