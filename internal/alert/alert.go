// Package alert implements the Alert Manager of spec §4.9: threshold
// gating, HTTP-error short-circuiting, severity mapping, and
// fingerprint-based deduplication, grounded on
// original_source/src/alert/alert_manager.py. The Korean alert message
// templates are kept verbatim, matching the original operator-facing text.
package alert

import (
	"fmt"
	"time"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

// Level mirrors alert_manager.py's plain level strings.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

const (
	// DefaultMaxAlerts, DefaultThreshold, and DefaultDeduplicationWindow
	// match AlertManager's constructor defaults.
	DefaultMaxAlerts             = 1000
	DefaultThreshold             = 0.7
	DefaultDeduplicationWindow   = 60 // kept on AlertManager; CreateAlert does not consult it
	dedupHashHistory             = 100
)

// Changepoint carries just the fields the message template needs.
type Changepoint struct {
	HasChangepoint bool
	Type           string
}

// DetectionResult is the generalized shape alert.CreateAlert consumes,
// covering both the Detector Manager's and the Comprehensive Detector's
// outputs.
type DetectionResult struct {
	IsAnomaly    bool
	AnomalyScore float64
	Method       string
	Details      map[string]any
	Changepoint  *Changepoint
}

// Alert is a single generated alert, grounded on alert_manager.py's Alert class.
type Alert struct {
	Level        Level
	Message      string
	Details      map[string]any
	Timestamp    string
	Acknowledged bool
}

// AlertManager deduplicates and thresholds detection results into alerts,
// grounded on original_source/src/alert/alert_manager.py.
type AlertManager struct {
	MaxAlerts            int
	Threshold            float64
	DeduplicationWindow  int

	alerts    []Alert
	hashSeen  map[string]struct{}
	hashOrder []string
}

// New builds an AlertManager; zero values fall back to the Python defaults.
func New(maxAlerts int, threshold float64, deduplicationWindow int) *AlertManager {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if deduplicationWindow <= 0 {
		deduplicationWindow = DefaultDeduplicationWindow
	}
	return &AlertManager{
		MaxAlerts:           maxAlerts,
		Threshold:           threshold,
		DeduplicationWindow: deduplicationWindow,
		hashSeen:            make(map[string]struct{}),
	}
}

func generateAlertHash(message string, anomalyScore float64, isAnomaly bool) string {
	return fmt.Sprintf("%s|%t|%.2f", message, isAnomaly, anomalyScore)
}

func (m *AlertManager) isDuplicate(hash string) bool {
	_, ok := m.hashSeen[hash]
	return ok
}

func (m *AlertManager) rememberHash(hash string) {
	m.hashSeen[hash] = struct{}{}
	m.hashOrder = append(m.hashOrder, hash)
	if len(m.hashOrder) > dedupHashHistory {
		oldest := m.hashOrder[0]
		m.hashOrder = m.hashOrder[1:]
		delete(m.hashSeen, oldest)
	}
}

func determineLevel(anomalyScore float64, isAnomaly bool) Level {
	if !isAnomaly {
		return LevelInfo
	}
	if anomalyScore >= 0.9 {
		return LevelCritical
	}
	if anomalyScore >= 0.7 {
		return LevelWarning
	}
	return LevelInfo
}

var statusMessages = map[int]string{
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	408: "Request Timeout",
	418: "I'm a teapot",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// generateMessage builds the operator-facing alert text. HTTP errors get a
// dedicated template; everything else gets the generic anomaly template,
// with an optional change-point suffix. Both templates are kept verbatim
// from alert_manager.py's Korean text.
func generateMessage(result DetectionResult, ev *event.Event) string {
	if ev != nil {
		if code, ok := ev.StatusCode.Get(); ok && code >= 400 {
			msg, known := statusMessages[code]
			if !known {
				msg = fmt.Sprintf("HTTP %d", code)
			}
			return fmt.Sprintf("[%s] HTTP 에러 발생: %d %s", ev.Endpoint, code, msg)
		}
	}

	base := fmt.Sprintf("이상 탐지됨 (점수: %.2f, 방법: %s)", result.AnomalyScore, result.Method)
	if ev != nil {
		status := "unknown"
		if code, ok := ev.StatusCode.Get(); ok {
			status = fmt.Sprintf("%d", code)
		}
		base = fmt.Sprintf("[%s] %s (상태: %s)", ev.Endpoint, base, status)
	}

	if result.Changepoint != nil && result.Changepoint.HasChangepoint {
		base += fmt.Sprintf(" | 변화점: %s", result.Changepoint.Type)
	}

	return base
}

// CreateAlert builds and stores an Alert from a detection result and
// optional originating event, or returns nil when the alert is below
// threshold or a duplicate of a recent alert. A numeric HTTP status_code
// >= 400 on ev always produces an alert, bypassing the threshold: 1.0 for
// 5xx, 0.8 otherwise.
func (m *AlertManager) CreateAlert(result DetectionResult, ev *event.Event) *Alert {
	isAnomaly := result.IsAnomaly
	anomalyScore := result.AnomalyScore

	isHTTPError := false
	if ev != nil {
		if code, ok := ev.StatusCode.Get(); ok && code >= 400 {
			isHTTPError = true
			isAnomaly = true
			anomalyScore = 0.8
			if code >= 500 {
				anomalyScore = 1.0
			}
		}
	}

	if !isHTTPError && (!isAnomaly || anomalyScore < m.Threshold) {
		return nil
	}

	message := generateMessage(result, ev)
	level := determineLevel(anomalyScore, isAnomaly)

	details := map[string]any{
		"anomaly_score":     anomalyScore,
		"is_anomaly":        isAnomaly,
		"method":            result.Method,
		"detection_details": result.Details,
	}
	if ev != nil {
		status := "unknown"
		if code, ok := ev.StatusCode.Get(); ok {
			status = fmt.Sprintf("%d", code)
		}
		details["event"] = map[string]any{
			"endpoint":    ev.Endpoint,
			"status_code": status,
			"timestamp":   ev.TimestampString(),
		}
	}

	hash := generateAlertHash(message, anomalyScore, isAnomaly)
	if m.isDuplicate(hash) {
		return nil
	}

	a := Alert{
		Level:     level,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(event.TimeFormat),
	}

	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.MaxAlerts {
		m.alerts = m.alerts[len(m.alerts)-m.MaxAlerts:]
	}
	m.rememberHash(hash)

	return &m.alerts[len(m.alerts)-1]
}

// GetRecentAlerts returns up to count most-recent alerts, optionally
// filtered by level.
func (m *AlertManager) GetRecentAlerts(count int, level Level) []Alert {
	var filtered []Alert
	if level == "" {
		filtered = m.alerts
	} else {
		for _, a := range m.alerts {
			if a.Level == level {
				filtered = append(filtered, a)
			}
		}
	}
	if count <= 0 || count > len(filtered) {
		count = len(filtered)
	}
	return filtered[len(filtered)-count:]
}

// AcknowledgeAlert marks the alert at alertIndex (counted from the newest,
// 0-based) acknowledged.
func (m *AlertManager) AcknowledgeAlert(alertIndex int) {
	if alertIndex < 0 || alertIndex >= len(m.alerts) {
		return
	}
	idx := len(m.alerts) - 1 - alertIndex
	m.alerts[idx].Acknowledged = true
}

// Stats mirrors alert_manager.py's get_stats.
type Stats struct {
	TotalAlerts    int
	LevelCounts    map[Level]int
	Unacknowledged int
	Threshold      float64
}

func (m *AlertManager) GetStats() Stats {
	counts := make(map[Level]int)
	unacked := 0
	for _, a := range m.alerts {
		counts[a.Level]++
		if !a.Acknowledged {
			unacked++
		}
	}
	return Stats{
		TotalAlerts:    len(m.alerts),
		LevelCounts:    counts,
		Unacknowledged: unacked,
		Threshold:      m.Threshold,
	}
}

// ClearAlerts removes every alert, or only those at the given level when
// level is non-empty.
func (m *AlertManager) ClearAlerts(level Level) {
	if level == "" {
		m.alerts = nil
		return
	}
	filtered := m.alerts[:0]
	for _, a := range m.alerts {
		if a.Level != level {
			filtered = append(filtered, a)
		}
	}
	m.alerts = filtered
}
