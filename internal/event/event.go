// Package event defines the canonical telemetry record that flows through
// the pipeline, replacing the Python source's open-ended event dict with an
// explicit tagged schema.
package event

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// TimeFormat is the single canonical timestamp format used on the wire and
// in every display string: "YYYY-MM-DD HH:MM:SS.ffffff", local time.
const TimeFormat = "2006-01-02 15:04:05.000000"

// Option carries a value that may be absent, replacing the "field present
// and of numeric kind" checks the Python source repeats at every call site.
type Option[T any] struct {
	Value T
	Valid bool
}

// Some builds a present Option.
func Some[T any](v T) Option[T] {
	return Option[T]{Value: v, Valid: true}
}

// Get returns the value and whether it was present.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// OrElse returns the value, or fallback if absent.
func (o Option[T]) OrElse(fallback T) T {
	if o.Valid {
		return o.Value
	}
	return fallback
}

func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.Valid = false
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		// Non-numeric where numeric is expected: silently skip, never coerce.
		o.Valid = false
		return nil
	}
	o.Value = v
	o.Valid = true
	return nil
}

// Event is the canonical record described in spec §3.
type Event struct {
	Timestamp    time.Time      `json:"-"`
	Endpoint     string         `json:"endpoint"`
	StatusCode   Option[int]    `json:"status_code"`
	ResponseTime Option[float64] `json:"response_time"`
	CPUUsage     Option[float64] `json:"cpu_usage"`
	MemoryUsage  Option[float64] `json:"memory_usage"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	IsAnomaly    Option[bool]   `json:"is_anomaly"`
	Extra        map[string]any `json:"-"`
}

// wireEvent mirrors Event's JSON shape with a raw timestamp string, plus an
// Extra bag for anything we don't model — unknown keys become opaque
// extension data rather than being rejected.
type wireEvent struct {
	Timestamp    string          `json:"timestamp"`
	Endpoint     string          `json:"endpoint"`
	StatusCode   Option[int]     `json:"status_code"`
	ResponseTime Option[float64] `json:"response_time"`
	CPUUsage     Option[float64] `json:"cpu_usage"`
	MemoryUsage  Option[float64] `json:"memory_usage"`
	IP           string          `json:"ip"`
	UserAgent    string          `json:"user_agent"`
	IsAnomaly    Option[bool]    `json:"is_anomaly"`
}

// ParseJSON decodes one JSON-encoded event line. A malformed timestamp does
// not fail the whole event: the caller is expected to stamp the event with
// Now() via Stamp when Timestamp is zero, mirroring window_manager.py's
// add_event behavior.
func ParseJSON(data []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}

	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}

	e := Event{
		Endpoint:     w.Endpoint,
		StatusCode:   w.StatusCode,
		ResponseTime: w.ResponseTime,
		CPUUsage:     w.CPUUsage,
		MemoryUsage:  w.MemoryUsage,
		IP:           w.IP,
		UserAgent:    w.UserAgent,
		IsAnomaly:    w.IsAnomaly,
	}
	if e.Endpoint == "" {
		e.Endpoint = "unknown"
	}
	if w.Timestamp != "" {
		if t, err := time.ParseInLocation(TimeFormat, w.Timestamp, time.Local); err == nil {
			e.Timestamp = t
		}
	}

	known := map[string]struct{}{
		"timestamp": {}, "endpoint": {}, "status_code": {}, "response_time": {},
		"cpu_usage": {}, "memory_usage": {}, "ip": {}, "user_agent": {}, "is_anomaly": {},
	}
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[k] = v
	}

	return e, nil
}

// Stamp sets Timestamp to now (in the canonical format's precision) if it is
// still zero, matching window_manager.py's add_event.
func (e *Event) Stamp() {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().Truncate(time.Microsecond)
	}
}

// TimestampString renders Timestamp in the canonical wire format.
func (e Event) TimestampString() string {
	return e.Timestamp.Format(TimeFormat)
}

// StatusCodeOrDefault returns the status code, defaulting to 200 when absent
// (spec §3: "may be absent -> treated as 200").
func (e Event) StatusCodeOrDefault() int {
	return e.StatusCode.OrElse(200)
}

// IsNumericError reports whether the event carries a numeric status_code >= 400.
func (e Event) IsNumericError() bool {
	code, ok := e.StatusCode.Get()
	return ok && code >= 400
}
