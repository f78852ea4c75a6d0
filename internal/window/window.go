// Package window implements the bounded sliding-window state of spec §4.1:
// a fixed-capacity ring of recent events plus lazily created named
// secondary windows, grounded on original_source/src/processing/window_manager.py.
package window

import (
	"fmt"
	"time"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

// ring is a plain slice-backed bounded FIFO. Oldest entries are evicted once
// capacity is reached. No corpus library offers this exact read pattern
// (append + scan-backward time-range query) cheaply, so this stays stdlib.
type ring struct {
	capacity int
	buf      []event.Event
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{capacity: capacity, buf: make([]event.Event, 0, capacity)}
}

func (r *ring) push(e event.Event) {
	r.buf = append(r.buf, e)
	if len(r.buf) > r.capacity {
		r.buf = r.buf[len(r.buf)-r.capacity:]
	}
}

func (r *ring) recent(n int) []event.Event {
	if n <= 0 || n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]event.Event, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}

func (r *ring) all() []event.Event {
	return r.recent(len(r.buf))
}

func (r *ring) clear() {
	r.buf = r.buf[:0]
}

func (r *ring) len() int {
	return len(r.buf)
}

// DefaultCapacity is the main ring's default size (spec §3).
const DefaultCapacity = 1000

// DefaultNamedCapacity is the default size for a lazily created named window.
const DefaultNamedCapacity = 100

// Manager is the Window Manager of spec §4.1. It is single-writer: only the
// pipeline goroutine that owns a Manager instance may call its mutating
// methods.
type Manager struct {
	main    *ring
	named   map[string]*ring
	namedSz map[string]int
}

// NewManager creates a Window Manager with the given main-ring capacity.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		main:    newRing(capacity),
		named:   make(map[string]*ring),
		namedSz: make(map[string]int),
	}
}

// AddEvent stamps e with the current time if its timestamp is absent, then
// appends it to the main ring.
func (m *Manager) AddEvent(e event.Event) {
	e.Stamp()
	m.main.push(e)
}

// GetRecentEvents returns the last n events in arrival order, or all events
// when n <= 0.
func (m *Manager) GetRecentEvents(n int) []event.Event {
	return m.main.recent(n)
}

// GetTimeWindow returns events whose timestamp falls in
// [newest.Timestamp - seconds, newest.Timestamp], scanning backwards from the
// newest event and stopping at the first out-of-range entry. A single
// out-of-order event ends the scan early; this is documented behavior, not a
// bug (spec §4.1).
func (m *Manager) GetTimeWindow(seconds float64) ([]event.Event, error) {
	all := m.main.all()
	if len(all) == 0 {
		return nil, nil
	}
	newest := all[len(all)-1]
	if newest.Timestamp.IsZero() {
		return nil, fmt.Errorf("get time window: newest event has no timestamp")
	}
	cutoff := newest.Timestamp.Add(-time.Duration(seconds * float64(time.Second)))

	result := make([]event.Event, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Timestamp.Before(cutoff) {
			break
		}
		result = append(result, all[i])
	}
	// result was built newest-first; reverse to arrival order.
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}

// UpdateWindow lazily creates the named window (with the given size, or
// DefaultNamedCapacity) if needed, then appends e to it.
func (m *Manager) UpdateWindow(name string, e event.Event, size int) {
	r := m.namedRing(name, size)
	r.push(e)
}

// GetWindow returns the contents of the named window, lazily creating it
// (empty) if it does not yet exist.
func (m *Manager) GetWindow(name string, size int) []event.Event {
	r := m.namedRing(name, size)
	return r.all()
}

func (m *Manager) namedRing(name string, size int) *ring {
	if r, ok := m.named[name]; ok {
		return r
	}
	if size <= 0 {
		size = DefaultNamedCapacity
	}
	r := newRing(size)
	m.named[name] = r
	m.namedSz[name] = size
	return r
}

// Clear clears a single named window, or all state (main ring and every
// named window) when name is empty.
func (m *Manager) Clear(name string) {
	if name == "" {
		m.main.clear()
		m.named = make(map[string]*ring)
		m.namedSz = make(map[string]int)
		return
	}
	if r, ok := m.named[name]; ok {
		r.clear()
	}
}

// Stats mirrors window_manager.py's get_stats for introspection/metrics.
type Stats struct {
	BufferSize  int
	WindowCount int
	Windows     map[string]int
}

func (m *Manager) Stats() Stats {
	windows := make(map[string]int, len(m.named))
	for name, r := range m.named {
		windows[name] = r.len()
	}
	return Stats{
		BufferSize:  m.main.len(),
		WindowCount: len(m.named),
		Windows:     windows,
	}
}
