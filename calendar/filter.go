package calendar

import (
	"strings"
	"time"
)

// RangeKind selects the time window of a directive block.
type RangeKind int

const (
	RangeUnknown RangeKind = iota
	// RangeCurrentWeek is [monday 00:00, next monday 00:00).
	RangeCurrentWeek
	// RangeUpcomingWeek is [now, now+7d).
	RangeUpcomingWeek
	// RangeCurrentMonth is [1st 00:00, 1st of next month 00:00).
	RangeCurrentMonth
)

// Range is a parsed range token. Raw keeps the token for diagnostics.
type Range struct {
	Kind RangeKind
	Raw  string
}

// ParseRange maps a range token to its kind; unknown names yield RangeUnknown.
func ParseRange(s string) Range {
	r := Range{Raw: s}
	switch strings.TrimSpace(s) {
	case "currentweek":
		r.Kind = RangeCurrentWeek
	case "upcomingweek":
		r.Kind = RangeUpcomingWeek
	case "currentmonth":
		r.Kind = RangeCurrentMonth
	}
	return r
}

// Window returns the [start, end) interval of r at instant now in loc.
// ok is false for unknown ranges.
func (r Range) Window(now time.Time, loc *time.Location) (start, end time.Time, ok bool) {
	now = now.In(loc)
	switch r.Kind {
	case RangeCurrentWeek:
		start = startOfWeek(now, time.Monday)
		return start, start.AddDate(0, 0, 7), true
	case RangeUpcomingWeek:
		return now, now.AddDate(0, 0, 7), true
	case RangeCurrentMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0), true
	}
	return time.Time{}, time.Time{}, false
}

func startOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	diff := (7 + int(t.Weekday()-weekStart)) % 7
	day := t.AddDate(0, 0, -diff)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// FilterKind is the closed set of chained filters.
type FilterKind int

const (
	FilterUnknown FilterKind = iota
	FilterWithTime
	FilterWithoutTime
	FilterWithoutLocation
	// FilterLocation matches a location substring ignoring case.
	FilterLocation
	// FilterLocationExact matches a location substring with exact case.
	FilterLocationExact
)

// Filter is a parsed chained filter token with its argument.
type Filter struct {
	Kind FilterKind
	Arg  string
	Raw  string
}

// ParseFilter maps a filter token to its kind; unknown tokens yield FilterUnknown.
func ParseFilter(s string) Filter {
	f := Filter{Raw: s}
	switch {
	case s == "withtime":
		f.Kind = FilterWithTime
	case s == "withouttime":
		f.Kind = FilterWithoutTime
	case s == "withoutlocation":
		f.Kind = FilterWithoutLocation
	case strings.HasPrefix(s, "location="):
		f.Kind, f.Arg = FilterLocation, strings.TrimPrefix(s, "location=")
	case strings.HasPrefix(s, "exactlocation="):
		f.Kind, f.Arg = FilterLocationExact, strings.TrimPrefix(s, "exactlocation=")
	}
	return f
}

// Keep reports whether o passes the filter. Unknown filters keep everything.
func (f Filter) Keep(o Occurrence) bool {
	switch f.Kind {
	case FilterWithTime:
		return o.HasTime()
	case FilterWithoutTime:
		return !o.HasTime()
	case FilterWithoutLocation:
		return o.Location == ""
	case FilterLocation:
		return ContainsFold(o.Location, f.Arg)
	case FilterLocationExact:
		return strings.Contains(o.Location, f.Arg)
	}
	return true
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Resolve returns the occurrences of rng narrowed by filters, sorted by start.
func (c *Calendar) Resolve(rng Range, filters []Filter, now time.Time) []Occurrence {
	if c == nil {
		return nil
	}
	start, end, ok := rng.Window(now, c.location)
	if !ok {
		return nil
	}
	occs := c.Between(start, end)
	for _, f := range filters {
		kept := occs[:0]
		for _, o := range occs {
			if f.Keep(o) {
				kept = append(kept, o)
			}
		}
		occs = kept
	}
	return occs
}

// Resolve parses calendar text and resolves a range name with chained filter
// tokens in one step. Unknown range names resolve to an empty sequence.
func Resolve(text string, rangeName string, filterTokens []string, now time.Time, loc *time.Location) ([]Occurrence, error) {
	cal, _, err := Parse([]byte(text), loc)
	if err != nil {
		return nil, err
	}
	rng := ParseRange(rangeName)
	filters := make([]Filter, 0, len(filterTokens))
	for _, tok := range filterTokens {
		filters = append(filters, ParseFilter(tok))
	}
	return cal.Resolve(rng, filters, now), nil
}
