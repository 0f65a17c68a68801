package capability

import (
	"fmt"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

// ParseDate parses an ISO date or a human-readable one ("yesterday",
// "2 weeks ago", "1 ตุลาคม 2026") relative to now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.ParseInLocation(dateLayout, s, now.Location()); err == nil {
		return t, nil
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		CurrentTime:         now,
		Languages:           []string{"en", "th"},
		PreferredDateSource: dps.Past,
	}
	parsed, err := parser.Parse(cfg, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a valid date: %w", s, err)
	}
	if parsed.IsZero() {
		return time.Time{}, fmt.Errorf("%q could not be parsed as a date", s)
	}
	return truncateDay(parsed.Time.In(now.Location())), nil
}

// ParseWindow builds a window from optional since/until strings. Both bounds
// name whole days and until is inclusive: ("2026-10-01", "2026-10-07") covers
// seven days.
func ParseWindow(since, until string, now time.Time) (Window, error) {
	var w Window
	if strings.TrimSpace(since) != "" {
		t, err := ParseDate(since, now)
		if err != nil {
			return Window{}, fmt.Errorf("since: %w", err)
		}
		w.Since = truncateDay(t)
	}
	if strings.TrimSpace(until) != "" {
		t, err := ParseDate(until, now)
		if err != nil {
			return Window{}, fmt.Errorf("until: %w", err)
		}
		w.Until = truncateDay(t).AddDate(0, 0, 1)
	}
	if !w.Since.IsZero() && !w.Until.IsZero() && !w.Since.Before(w.Until) {
		return Window{}, fmt.Errorf("since (%s) is after until (%s)", since, until)
	}
	return w, nil
}
