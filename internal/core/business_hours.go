package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BusinessHours is the time-of-day gate evaluated in a fixed timezone.
// Start and End are whole hours in [0, 24]; Start > End wraps midnight and
// Start == End disables the gate. Days, when non-empty, restricts the gate to
// windows opening on the listed local weekdays.
type BusinessHours struct {
	Start    int
	End      int
	Location *time.Location
	Days     map[time.Weekday]bool
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// NewBusinessHours builds the gate. days accepts comma-separated weekdays or
// ranges as numbers (0 = Sunday) or three-letter names, e.g. "1-5" or "mon-fri,sat".
func NewBusinessHours(start, end int, timezone, days string) (*BusinessHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	parsed, err := parseWeekdays(days)
	if err != nil {
		return nil, err
	}
	return &BusinessHours{Start: start, End: end, Location: loc, Days: parsed}, nil
}

// IsOpen reports whether t falls inside the window. For a window that wraps
// midnight, the hours after midnight belong to the day the window opened, so a
// Friday 22-02 window is open at 01:00 on Saturday.
func (b *BusinessHours) IsOpen(t time.Time) bool {
	if b == nil {
		return true
	}
	local := t
	if b.Location != nil {
		local = t.In(b.Location)
	}

	day := local.Weekday()
	h := local.Hour()
	switch {
	case b.Start == b.End:
	case b.Start < b.End:
		if h < b.Start || h >= b.End {
			return false
		}
	default:
		if h < b.Start && h >= b.End {
			return false
		}
		if h < b.End {
			day = (day + 6) % 7
		}
	}
	return len(b.Days) == 0 || b.Days[day]
}

func parseWeekdays(raw string) (map[time.Weekday]bool, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return nil, nil
	}

	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		first, err := parseWeekday(from)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseWeekday(to); err != nil {
				return nil, err
			}
		}
		for d := first; ; d = (d + 1) % 7 {
			days[d] = true
			if d == last {
				break
			}
		}
	}
	return days, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return time.Weekday(n), nil
}
