// Package alertsink provides a minimal colorized console renderer for
// alerts. It is explicitly not a dashboard (out of scope per spec.md's
// Non-goals) — just enough operator-facing output to make local runs and
// tests legible.
package alertsink

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/alert"
)

// Console writes one colorized line per alert to an io.Writer.
type Console struct {
	out      io.Writer
	critical *color.Color
	warning  *color.Color
	info     *color.Color
}

// NewConsole builds a sink writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:      out,
		critical: color.New(color.FgRed, color.Bold),
		warning:  color.New(color.FgYellow),
		info:     color.New(color.FgCyan),
	}
}

// Write renders a single alert line, colored by level.
func (c *Console) Write(a alert.Alert) {
	line := fmt.Sprintf("[%s] %s %s", a.Timestamp, levelTag(a.Level), a.Message)
	switch a.Level {
	case alert.LevelCritical:
		c.critical.Fprintln(c.out, line)
	case alert.LevelWarning:
		c.warning.Fprintln(c.out, line)
	default:
		c.info.Fprintln(c.out, line)
	}
}

func levelTag(l alert.Level) string {
	switch l {
	case alert.LevelCritical:
		return "CRITICAL"
	case alert.LevelWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}
