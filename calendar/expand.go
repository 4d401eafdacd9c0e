package calendar

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// maxOccurrencesPerEvent caps a single RRULE expansion.
const maxOccurrencesPerEvent = 5000

// Between expands every event into the occurrences overlapping [start, end).
// The result is sorted by start; ties keep the order of the source document.
func (c *Calendar) Between(start, end time.Time) []Occurrence {
	if c == nil || !start.Before(end) {
		return nil
	}

	overrides := make(map[string][]event)
	for _, ev := range c.events {
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var out []Occurrence
	consumed := make(map[overrideKey]bool)
	for _, ev := range c.events {
		if ev.Recurrence != nil {
			continue
		}
		if ev.RawRRule == "" {
			out = c.expandSingle(out, ev, overrides[ev.UID], consumed, start, end)
			continue
		}
		out = c.expandRecurring(out, ev, overrides[ev.UID], consumed, start, end)
	}
	// Overrides whose original instance lies outside the window, or that have
	// no base event at all, still show up at their own time.
	for _, ev := range c.events {
		if ev.Recurrence == nil || ev.Cancelled || consumed[keyOf(ev)] {
			continue
		}
		out = appendIfOverlaps(out, c.makeOccurrence(ev, ev.Start, ev.End), start, end)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (c *Calendar) expandSingle(out []Occurrence, ev event, overrides []event, consumed map[overrideKey]bool, start, end time.Time) []Occurrence {
	if o, ok := findOverride(overrides, ev.Start); ok {
		consumed[keyOf(o)] = true
		ev = o
	}
	if ev.Cancelled {
		return out
	}
	return appendIfOverlaps(out, c.makeOccurrence(ev, ev.Start, ev.End), start, end)
}

func (c *Calendar) expandRecurring(out []Occurrence, ev event, overrides []event, consumed map[overrideKey]bool, start, end time.Time) []Occurrence {
	opt, err := rrule.StrToROptionInLocation(ev.RawRRule, ev.Start.Location())
	if err != nil {
		// Fall back to the first instance so a bad rule does not hide the event.
		return appendIfOverlaps(out, c.makeOccurrence(ev, ev.Start, ev.End), start, end)
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return appendIfOverlaps(out, c.makeOccurrence(ev, ev.Start, ev.End), start, end)
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Instances that started before the window may still overlap it.
	from := start.Add(-dur).In(ev.Start.Location())
	times := set.Between(from, end.In(ev.Start.Location()), true)
	if len(times) > maxOccurrencesPerEvent {
		times = times[:maxOccurrencesPerEvent]
	}

	for _, t := range times {
		inst := ev
		instStart, instEnd := t, t.Add(dur)
		if ev.AllDay {
			instStart = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
			instEnd = instStart.AddDate(0, 0, int(dur/(24*time.Hour)))
			if !instEnd.After(instStart) {
				instEnd = instStart.AddDate(0, 0, 1)
			}
		}
		if o, ok := findOverride(overrides, instStart); ok {
			consumed[keyOf(o)] = true
			inst = o
			instStart, instEnd = o.Start, o.End
		}
		if inst.Cancelled {
			continue
		}
		out = appendIfOverlaps(out, c.makeOccurrence(inst, instStart, instEnd), start, end)
	}
	return out
}

func (c *Calendar) makeOccurrence(ev event, start, end time.Time) Occurrence {
	occ := Occurrence{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start.In(c.location),
		End:         end.In(c.location),
		seq:         ev.seq,
	}
	if ev.AllDay {
		// Keep the calendar date rather than shifting midnight across zones.
		occ.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.location)
		occ.End = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, c.location)
	}
	return occ
}

func appendIfOverlaps(out []Occurrence, o Occurrence, start, end time.Time) []Occurrence {
	if !o.Start.Before(end) {
		return out
	}
	// Zero-length events overlap when their instant lies in the window.
	if o.End.Equal(o.Start) {
		if o.Start.Before(start) {
			return out
		}
	} else if !o.End.After(start) {
		return out
	}
	return append(out, o)
}

func findOverride(overrides []event, instStart time.Time) (event, bool) {
	for _, ov := range overrides {
		if ov.Recurrence.Equal(instStart) {
			return ov, true
		}
	}
	return event{}, false
}

type overrideKey struct {
	uid string
	rid int64
}

func keyOf(ev event) overrideKey {
	return overrideKey{uid: ev.UID, rid: ev.Recurrence.Unix()}
}
