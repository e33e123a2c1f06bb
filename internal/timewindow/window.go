package timewindow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IST is the display timezone for all operator-facing timestamps.
// A fixed offset avoids a runtime tzdata dependency; IST has no DST.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Window is a half-open time range [Start, End) over which error counts
// are aggregated. Created once per orchestration cycle and never mutated.
type Window struct {
	Start time.Time
	End   time.Time
}

// New creates a window and validates that start precedes end.
func New(start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, fmt.Errorf("invalid window: start %s is not before end %s", start, end)
	}
	return Window{Start: start, End: end}, nil
}

// Last returns the window covering the d duration ending at now.
func Last(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// StartEpoch returns the window start as Unix seconds (UTC).
func (w Window) StartEpoch() int64 { return w.Start.Unix() }

// EndEpoch returns the window end as Unix seconds (UTC).
func (w Window) EndEpoch() int64 { return w.End.Unix() }

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// StartIST returns the window start formatted for display in IST.
func (w Window) StartIST() string { return w.Start.In(IST).Format("2006-01-02 15:04:05") + " IST" }

// EndIST returns the window end formatted for display in IST.
func (w Window) EndIST() string { return w.End.In(IST).Format("2006-01-02 15:04:05") + " IST" }

// FormatIST renders a timestamp with millisecond precision in IST, the
// format used across timeline events and reports.
func FormatIST(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(IST).Format("2006-01-02 15:04:05.000") + " IST"
}

// ParseTimestamp parses the timestamp shapes the query backends emit:
// RFC3339 (with or without fractional seconds), "2006-01-02 15:04:05"
// variants, and bare epoch numbers in seconds, milliseconds, microseconds
// or nanoseconds. Returns an error for anything it cannot interpret;
// callers skip such records rather than failing the run.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToTime(f), nil
	}

	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// epochToTime interprets a bare number by magnitude: seconds up to ~year
// 2255, then milliseconds, microseconds, nanoseconds.
func epochToTime(f float64) time.Time {
	switch {
	case f < 1e11: // seconds
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	case f < 1e14: // milliseconds
		return time.UnixMilli(int64(f)).UTC()
	case f < 1e17: // microseconds
		return time.UnixMicro(int64(f)).UTC()
	default: // nanoseconds
		return time.Unix(0, int64(f)).UTC()
	}
}
