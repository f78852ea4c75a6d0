package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

func TestDetectHTTPErrorsServerError(t *testing.T) {
	d := NewComprehensiveDetector()
	e := event.Event{StatusCode: event.Some(500), Endpoint: "/api/orders"}
	f := d.DetectHTTPErrors(e)
	require.NotNil(t, f)
	assert.Equal(t, SeverityCritical, f.Severity)
	assert.Equal(t, 1.0, f.Score)
}

func TestDetectHTTPErrorsClientError(t *testing.T) {
	d := NewComprehensiveDetector()
	e := event.Event{StatusCode: event.Some(404)}
	f := d.DetectHTTPErrors(e)
	require.NotNil(t, f)
	assert.Equal(t, SeverityWarning, f.Severity)
	assert.Equal(t, 0.5, f.Score)
}

func TestDetectHTTPErrorsTooManyRequests(t *testing.T) {
	d := NewComprehensiveDetector()
	e := event.Event{StatusCode: event.Some(429)}
	f := d.DetectHTTPErrors(e)
	require.NotNil(t, f)
	assert.Equal(t, 0.7, f.Score)
}

func TestDetectHTTPErrorsNoStatusCode(t *testing.T) {
	d := NewComprehensiveDetector()
	f := d.DetectHTTPErrors(event.Event{})
	assert.Nil(t, f)
}

func TestDetectResourceAnomaliesCPUSaturated(t *testing.T) {
	d := NewComprehensiveDetector()
	for i := 0; i < 10; i++ {
		d.DetectResourceAnomalies(event.Event{CPUUsage: event.Some(20.0)})
	}
	// Saturation is judged on the mean of the last three readings.
	var findings []Finding
	for i := 0; i < 3; i++ {
		findings = d.DetectResourceAnomalies(event.Event{CPUUsage: event.Some(99.0)})
	}
	var found bool
	for _, f := range findings {
		if f.AnomalyType == "cpu_saturated" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectSecurityAnomaliesSuspiciousIP(t *testing.T) {
	d := NewComprehensiveDetector()
	var findings []Finding
	for i := 0; i < 60; i++ {
		findings = d.DetectSecurityAnomalies(event.Event{IP: "10.0.0.1", Endpoint: "/api/users"}, nil)
	}
	var found bool
	for _, f := range findings {
		if f.AnomalyType == "suspicious_ip_activity" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectReturnsNormalWhenNoFindings(t *testing.T) {
	d := NewComprehensiveDetector()
	result := d.Detect(event.Event{StatusCode: event.Some(200)}, nil)
	assert.False(t, result.IsAnomaly)
	assert.Equal(t, "normal", result.AnomalyType)
}

func TestDetectPicksMostSevereCriticalOverWarning(t *testing.T) {
	d := NewComprehensiveDetector()
	e := event.Event{StatusCode: event.Some(500), CPUUsage: event.Some(99.0)}
	for i := 0; i < 10; i++ {
		d.DetectResourceAnomalies(event.Event{CPUUsage: event.Some(20.0)})
	}
	result := d.Detect(e, nil)
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, SeverityCritical, result.Severity)
}

func TestPickMostSevere(t *testing.T) {
	findings := []Finding{
		{AnomalyType: "a", Severity: SeverityWarning, Score: 0.9},
		{AnomalyType: "b", Severity: SeverityCritical, Score: 0.4},
	}
	best := pickMostSevere(findings)
	assert.Equal(t, "b", best.AnomalyType)
}
