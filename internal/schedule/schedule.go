// File: internal/schedule/schedule.go
// ============================================
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Window is a daily trading window. ToHour may exceed 23 for windows
// that run past midnight.
type Window struct {
	FromHour, FromMinute int
	ToHour, ToMinute     int
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.FromHour, w.FromMinute, w.ToHour, w.ToMinute)
}

// ParseWindow reads "HH:MM-HH:MM". An end before the start is taken as
// the next day.
func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Window{}, fmt.Errorf("trading window %q: want HH:MM-HH:MM", s)
	}
	fh, fm, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("trading window %q: %w", s, err)
	}
	th, tm, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("trading window %q: %w", s, err)
	}
	return Window{FromHour: fh, FromMinute: fm, ToHour: th, ToMinute: tm}, nil
}

func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, 0, fmt.Errorf("bad minute %q", mm)
	}
	return h, m, nil
}

// span is a shifted window in minutes from midnight; end may pass 1440.
type span struct {
	start, end int
}

// Schedule answers "trade now?" and "sleep how long?" in a fixed zone.
type Schedule struct {
	loc   *time.Location
	spans []span
}

// New validates windows and moves every boundary one minute earlier, so
// a window configured to open at 10:00 is active from 09:59.
func New(windows []Window, loc *time.Location) (*Schedule, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("at least one trading window is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	spans := make([]span, 0, len(windows))
	for _, w := range windows {
		if w.FromHour < 0 || w.FromHour > 23 || w.FromMinute < 0 || w.FromMinute > 59 ||
			w.ToHour < 0 || w.ToHour > 47 || w.ToMinute < 0 || w.ToMinute > 59 {
			return nil, fmt.Errorf("trading window %s out of range", w)
		}
		start := w.FromHour*60 + w.FromMinute
		end := w.ToHour*60 + w.ToMinute
		if end <= start {
			end += minutesPerDay
		}
		if end <= start || end-start > minutesPerDay {
			return nil, fmt.Errorf("trading window %s is empty or longer than a day", w)
		}
		start--
		end--
		if start < 0 {
			start += minutesPerDay
			end += minutesPerDay
		}
		spans = append(spans, span{start: start, end: end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return &Schedule{loc: loc, spans: spans}, nil
}

// Windows returns the effective (shifted) windows.
func (s *Schedule) Windows() []Window {
	out := make([]Window, 0, len(s.spans))
	for _, sp := range s.spans {
		out = append(out, Window{
			FromHour: sp.start / 60, FromMinute: sp.start % 60,
			ToHour: sp.end / 60, ToMinute: sp.end % 60,
		})
	}
	return out
}

// Location is the zone every decision is made in.
func (s *Schedule) Location() *time.Location {
	return s.loc
}

func (s *Schedule) minuteOfDay(now time.Time) int {
	local := now.In(s.loc)
	return local.Hour()*60 + local.Minute()
}

// IsOpen reports whether now falls inside any window, start inclusive.
func (s *Schedule) IsOpen(now time.Time) bool {
	m := s.minuteOfDay(now)
	for _, sp := range s.spans {
		if (m >= sp.start && m < sp.end) || (m+minutesPerDay >= sp.start && m+minutesPerDay < sp.end) {
			return true
		}
	}
	return false
}

// NextOpen returns the start of the first window opening strictly after now.
func (s *Schedule) NextOpen(now time.Time) time.Time {
	local := now.In(s.loc)
	m := s.minuteOfDay(now)
	day := 0
	target := s.spans[0].start
	found := false
	for _, sp := range s.spans {
		if sp.start > m {
			target, found = sp.start, true
			break
		}
	}
	if !found {
		day = 1
	}
	return time.Date(local.Year(), local.Month(), local.Day()+day, target/60, target%60, 0, 0, s.loc)
}

// UntilNextOpen is how long to sleep before the next window opens.
func (s *Schedule) UntilNextOpen(now time.Time) time.Duration {
	d := s.NextOpen(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
