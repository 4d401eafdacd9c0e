package calendar

import "time"

// Occurrence is a single concrete instance of a calendar event, after
// recurrence expansion and conversion into the display location.
type Occurrence struct {
	UID         string
	Summary     string
	Description string
	Location    string

	// AllDay events carry a date only; Start/End are midnights.
	AllDay bool

	Start time.Time
	End   time.Time

	// seq is the position of the source VEVENT, used as a sort tie-breaker.
	seq int
}

// HasTime reports whether the start carries a time-of-day component.
func (o Occurrence) HasTime() bool {
	return !o.AllDay
}

// Covers reports whether t lies in [Start, End).
func (o Occurrence) Covers(t time.Time) bool {
	return !t.Before(o.Start) && t.Before(o.End)
}

// CoversWithLead is Covers with the window opened lead earlier.
func (o Occurrence) CoversWithLead(t time.Time, lead time.Duration) bool {
	return !t.Before(o.Start.Add(-lead)) && t.Before(o.End)
}

// Same reports whether two occurrences are the same instance of the same event.
func (o Occurrence) Same(other Occurrence) bool {
	return o.UID == other.UID && o.Start.Equal(other.Start)
}
