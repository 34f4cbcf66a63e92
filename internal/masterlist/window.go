package masterlist

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Window is an inclusive time range.
type Window struct {
	Begin time.Time
	End   time.Time
}

// Contains reports whether t lies within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Begin) && !t.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Begin.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// ParseWindow parses begin and end as YYYY-MM-DD dates or RFC 3339 times. A
// date-only end covers its whole day.
func ParseWindow(begin, end string) (Window, error) {
	b, _, err := parseBound(begin)
	if err != nil {
		return Window{}, fmt.Errorf("invalid begin %q: %w", begin, err)
	}
	e, dateOnly, err := parseBound(end)
	if err != nil {
		return Window{}, fmt.Errorf("invalid end %q: %w", end, err)
	}
	if dateOnly {
		e = e.Add(24*time.Hour - time.Second)
	}
	if e.Before(b) {
		return Window{}, fmt.Errorf("end %s is before begin %s", end, begin)
	}
	return Window{Begin: b, End: e}, nil
}

func parseBound(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected %s or RFC 3339", dateLayout)
	}
	return t.UTC(), false, nil
}
