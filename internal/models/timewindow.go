package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeWindow is a clock-time interval within a single day, "HH:MM" inclusive start,
// exclusive end.
type TimeWindow struct {
	Start string `db:"start_time" json:"start"`
	End   string `db:"end_time" json:"end"`
}

// NewTimeWindow builds a window from minutes past midnight.
func NewTimeWindow(startMinute, endMinute int) TimeWindow {
	return TimeWindow{Start: minutesToClock(startMinute), End: minutesToClock(endMinute)}
}

// Validate checks that both bounds parse and start precedes end.
func (w TimeWindow) Validate() error {
	start, err := ClockToMinutes(w.Start)
	if err != nil {
		return fmt.Errorf("invalid window start %q: %w", w.Start, err)
	}
	end, err := ClockToMinutes(w.End)
	if err != nil {
		return fmt.Errorf("invalid window end %q: %w", w.End, err)
	}
	if start >= end {
		return fmt.Errorf("window start %s must precede end %s", w.Start, w.End)
	}
	return nil
}

// StartMinute returns the start bound in minutes past midnight. Invalid values map to 0.
func (w TimeWindow) StartMinute() int {
	m, _ := ClockToMinutes(w.Start)
	return m
}

// EndMinute returns the end bound in minutes past midnight. Invalid values map to 0.
func (w TimeWindow) EndMinute() int {
	m, _ := ClockToMinutes(w.End)
	return m
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return time.Duration(w.EndMinute()-w.StartMinute()) * time.Minute
}

// Overlaps reports whether two windows share any minute.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.StartMinute() < other.EndMinute() && other.StartMinute() < w.EndMinute()
}

// Contains reports whether other lies fully inside w.
func (w TimeWindow) Contains(other TimeWindow) bool {
	return w.StartMinute() <= other.StartMinute() && other.EndMinute() <= w.EndMinute()
}

// Shift moves the whole window by delta minutes, clamped to the day.
func (w TimeWindow) Shift(deltaMinutes int) TimeWindow {
	start := w.StartMinute() + deltaMinutes
	end := w.EndMinute() + deltaMinutes
	if start < 0 || end > 24*60 {
		return w
	}
	return NewTimeWindow(start, end)
}

func (w TimeWindow) String() string {
	return w.Start + "-" + w.End
}

// ClockToMinutes parses "HH:MM" into minutes past midnight.
func ClockToMinutes(raw string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour*60 + minute, nil
}

func minutesToClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes > 24*60 {
		minutes = 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
