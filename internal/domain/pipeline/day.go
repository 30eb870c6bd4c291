package pipeline

import (
	"fmt"
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

// ParseDay accepts "YYYY-MM-DD" or an RFC3339 timestamp and returns the UTC
// midnight of that calendar date. An empty string resolves to today.
func ParseDay(raw string, now func() time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if now == nil {
			now = time.Now
		}
		return Truncate(now()), nil
	}
	if t, err := time.Parse(DayLayout, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	if len(raw) >= len(DayLayout) {
		if t, err := time.Parse(DayLayout, raw[:len(DayLayout)]); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid day %q: want YYYY-MM-DD", raw)
}

func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func FormatDay(t time.Time) string { return t.Format(DayLayout) }

// Window returns n consecutive dates ending at (and including) day, newest first.
func Window(day time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	day = Truncate(day)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, FormatDay(day.AddDate(0, 0, -i)))
	}
	return out
}
