package tools

import (
	"context"
	"time"
	_ "time/tzdata"
)

const clockLayout = "02/01/2006, 15:04:05"

// ClockTool reports the current wall-clock time in a fixed timezone.
type ClockTool struct {
	loc *time.Location
	now func() time.Time
}

// NewClockTool creates a ClockTool for the IANA timezone tz. An unknown zone falls back to UTC.
func NewClockTool(tz string) *ClockTool {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return &ClockTool{loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (t *ClockTool) WithClock(now func() time.Time) *ClockTool {
	t.now = now
	return t
}

func (t *ClockTool) Name() string { return "getCurrentTime" }

func (t *ClockTool) Description() string {
	return "Obtém a data e hora atuais no Brasil (fuso São Paulo)."
}

func (t *ClockTool) Parameters() []Parameter { return nil }

// Run returns {"currentTime": "dd/mm/yyyy, hh:mm:ss"}.
func (t *ClockTool) Run(_ context.Context, _ map[string]any) map[string]any {
	return map[string]any{"currentTime": t.now().In(t.loc).Format(clockLayout)}
}
