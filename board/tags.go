package board

import (
	"strings"
	"time"

	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/config"
)

// TagKind is the closed set of inline placeholders.
type TagKind int

const (
	TagUnknown TagKind = iota
	// TagSummary is {summary}.
	TagSummary
	// TagStart is {start|<format>}.
	TagStart
	// TagEnd is {end|<format>}.
	TagEnd
	// TagActive is {active|<text>}.
	TagActive
	// TagEta is {eta}.
	TagEta
	// TagEmote is {emote}.
	TagEmote
)

// Tag is a parsed placeholder. Arg is the first argument, Raw the full content
// between the braces.
type Tag struct {
	Kind TagKind
	Arg  string
	Raw  string
}

// ParseTag parses the content of a {...} placeholder.
func ParseTag(raw string) Tag {
	parts := strings.Split(raw, "|")
	t := Tag{Raw: raw}
	if len(parts) > 1 {
		t.Arg = parts[1]
	}
	switch parts[0] {
	case "summary":
		t.Kind = TagSummary
	case "start":
		t.Kind = TagStart
	case "end":
		t.Kind = TagEnd
	case "active":
		t.Kind = TagActive
	case "eta":
		t.Kind = TagEta
	case "emote":
		t.Kind = TagEmote
	}
	return t
}

// ResolveTag returns the replacement text of t for one occurrence at now.
// Unknown tags resolve to an empty string; ok reports whether t was known.
func ResolveTag(t Tag, o calendar.Occurrence, roles []Role, now time.Time) (text string, ok bool) {
	switch t.Kind {
	case TagSummary:
		return o.Summary, true
	case TagStart:
		return FormatTime(o.Start, t.Arg), true
	case TagEnd:
		return FormatTime(o.End, t.Arg), true
	case TagActive:
		if o.Covers(now) {
			return t.Arg, true
		}
		return "", true
	case TagEta:
		if now.Before(o.Start) {
			return Countdown(o.Start.Sub(now)), true
		}
		return Countdown(o.End.Sub(now)) + " left", true
	case TagEmote:
		for _, r := range roles {
			if r.MatchesOccurrence(o) {
				return EmoteName(r.Emote), true
			}
		}
		return config.FallbackEmote, true
	}
	return "", false
}

// expandLine resolves every {...} placeholder of line left to right. Text
// produced by a placeholder is not scanned again. An unterminated "{" leaves
// the rest of the line untouched.
func expandLine(line string, o calendar.Occurrence, roles []Role, now time.Time, unknown func(Tag)) string {
	var b strings.Builder
	rest := line
	for {
		open := strings.IndexByte(rest, '{')
		if open == -1 {
			break
		}
		closing := strings.IndexByte(rest[open+1:], '}')
		if closing == -1 {
			break
		}
		closing += open + 1

		b.WriteString(rest[:open])
		tag := ParseTag(rest[open+1 : closing])
		text, ok := ResolveTag(tag, o, roles, now)
		if !ok && unknown != nil {
			unknown(tag)
		}
		b.WriteString(text)
		rest = rest[closing+1:]
	}
	b.WriteString(rest)
	return b.String()
}
