package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

func evAt(t time.Time) event.Event {
	return event.Event{Timestamp: t, Endpoint: "/api/test"}
}

func TestManagerAddEventAndGetRecentEvents(t *testing.T) {
	m := NewManager(3)
	base := time.Now()
	m.AddEvent(evAt(base))
	m.AddEvent(evAt(base.Add(time.Second)))
	m.AddEvent(evAt(base.Add(2 * time.Second)))
	m.AddEvent(evAt(base.Add(3 * time.Second)))

	recent := m.GetRecentEvents(0)
	require.Len(t, recent, 3)
	assert.Equal(t, base.Add(time.Second), recent[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Second), recent[2].Timestamp)
}

func TestManagerGetRecentEventsLimitedCount(t *testing.T) {
	m := NewManager(10)
	base := time.Now()
	for i := 0; i < 5; i++ {
		m.AddEvent(evAt(base.Add(time.Duration(i) * time.Second)))
	}
	recent := m.GetRecentEvents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(3*time.Second), recent[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Second), recent[1].Timestamp)
}

func TestManagerGetTimeWindowStopsAtFirstOutOfRangeEntry(t *testing.T) {
	m := NewManager(10)
	base := time.Now()
	m.AddEvent(evAt(base))
	m.AddEvent(evAt(base.Add(100 * time.Second)))
	m.AddEvent(evAt(base.Add(101 * time.Second)))
	m.AddEvent(evAt(base.Add(102 * time.Second)))

	win, err := m.GetTimeWindow(5)
	require.NoError(t, err)
	require.Len(t, win, 3)
	assert.Equal(t, base.Add(100*time.Second), win[0].Timestamp)
}

func TestManagerGetTimeWindowEmptyWhenNoEvents(t *testing.T) {
	m := NewManager(10)
	win, err := m.GetTimeWindow(60)
	require.NoError(t, err)
	assert.Nil(t, win)
}

func TestManagerUpdateWindowAndGetWindow(t *testing.T) {
	m := NewManager(10)
	base := time.Now()
	m.UpdateWindow("errors", evAt(base), 5)
	m.UpdateWindow("errors", evAt(base.Add(time.Second)), 5)

	win := m.GetWindow("errors", 5)
	require.Len(t, win, 2)
}

func TestManagerGetWindowLazilyCreatesEmpty(t *testing.T) {
	m := NewManager(10)
	win := m.GetWindow("never-touched", 5)
	assert.Empty(t, win)
}

func TestManagerNamedRingEvictsOldest(t *testing.T) {
	m := NewManager(10)
	base := time.Now()
	for i := 0; i < 5; i++ {
		m.UpdateWindow("spikes", evAt(base.Add(time.Duration(i)*time.Second)), 3)
	}
	win := m.GetWindow("spikes", 3)
	require.Len(t, win, 3)
	assert.Equal(t, base.Add(2*time.Second), win[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Second), win[2].Timestamp)
}

func TestManagerClearSingleNamedWindow(t *testing.T) {
	m := NewManager(10)
	m.AddEvent(evAt(time.Now()))
	m.UpdateWindow("errors", evAt(time.Now()), 5)

	m.Clear("errors")
	assert.Empty(t, m.GetWindow("errors", 5))
	assert.Len(t, m.GetRecentEvents(0), 1)
}

func TestManagerClearAllResetsEverything(t *testing.T) {
	m := NewManager(10)
	m.AddEvent(evAt(time.Now()))
	m.UpdateWindow("errors", evAt(time.Now()), 5)

	m.Clear("")
	assert.Empty(t, m.GetRecentEvents(0))
	stats := m.Stats()
	assert.Equal(t, 0, stats.BufferSize)
	assert.Equal(t, 0, stats.WindowCount)
}

func TestManagerStatsReportsBufferAndWindowSizes(t *testing.T) {
	m := NewManager(10)
	m.AddEvent(evAt(time.Now()))
	m.AddEvent(evAt(time.Now()))
	m.UpdateWindow("errors", evAt(time.Now()), 5)

	stats := m.Stats()
	assert.Equal(t, 2, stats.BufferSize)
	assert.Equal(t, 1, stats.WindowCount)
	assert.Equal(t, 1, stats.Windows["errors"])
}

func TestNewManagerDefaultsCapacityWhenNonPositive(t *testing.T) {
	m := NewManager(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		m.AddEvent(evAt(time.Now().Add(time.Duration(i) * time.Millisecond)))
	}
	assert.Len(t, m.GetRecentEvents(0), DefaultCapacity)
}
