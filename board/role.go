package board

import (
	"strings"

	"github.com/cufee/botto-calendar/calendar"
	"github.com/kyokomi/emoji/v2"
)

// RoleFilterKind is the closed set of role-to-occurrence filters.
type RoleFilterKind int

const (
	// RoleFilterNever matches nothing, used for unrecognised expressions.
	RoleFilterNever RoleFilterKind = iota
	// RoleFilterNoLocation matches occurrences without a location.
	RoleFilterNoLocation
	// RoleFilterLocation matches a location substring ignoring case.
	RoleFilterLocation
)

// RoleFilter is a parsed role filter expression.
type RoleFilter struct {
	Kind RoleFilterKind
	Arg  string
}

// ParseRoleFilter parses "nolocation" or "location=<substr>".
func ParseRoleFilter(s string) RoleFilter {
	switch {
	case s == "nolocation":
		return RoleFilter{Kind: RoleFilterNoLocation}
	case strings.HasPrefix(s, "location="):
		return RoleFilter{Kind: RoleFilterLocation, Arg: strings.TrimPrefix(s, "location=")}
	}
	return RoleFilter{Kind: RoleFilterNever}
}

// Role is the part of a notification role the board needs.
type Role struct {
	Name        string
	Emote       string
	DiscordText string
	Filter      RoleFilter
}

// MatchesOccurrence reports whether o belongs to the role's category.
func (r Role) MatchesOccurrence(o calendar.Occurrence) bool {
	switch r.Filter.Kind {
	case RoleFilterNoLocation:
		return o.Location == ""
	case RoleFilterLocation:
		return calendar.ContainsFold(o.Location, r.Filter.Arg)
	}
	return false
}

// emoteParts splits a configured emote into its name and custom emoji id.
// Accepted forms are "name", ":name:", "name:id", "<:name:id>" and "<a:name:id>".
func emoteParts(emote string) (name, id string) {
	e := strings.TrimSpace(emote)
	if strings.HasPrefix(e, "<") && strings.HasSuffix(e, ">") {
		e = strings.TrimPrefix(e[1:len(e)-1], "a:")
	}
	e = strings.Trim(e, ":")
	if i := strings.IndexByte(e, ':'); i != -1 {
		return e[:i], e[i+1:]
	}
	return e, ""
}

// emoteUnicode resolves a shortcode such as "calendar" to its unicode
// character. Anything that is not a known shortcode is returned unchanged.
func emoteUnicode(name string) string {
	if u, ok := emoji.CodeMap()[":"+name+":"]; ok {
		return u
	}
	return name
}

// withoutVariation drops the emoji presentation selector, reaction events
// do not always carry it.
func withoutVariation(s string) string {
	return strings.ReplaceAll(s, "\ufe0f", "")
}

// EmoteName is the shortcode name of an emote, as written between colons in
// a message: ":dragon:" and "<:dragon:123>" give "dragon", "📆" gives "calendar".
func EmoteName(emote string) string {
	name, _ := emoteParts(emote)
	rev := emoji.RevCodeMap()
	for _, u := range []string{name, name + "\ufe0f", withoutVariation(name)} {
		if codes := rev[u]; len(codes) > 0 {
			return strings.Trim(codes[0], ":")
		}
	}
	return name
}

// EmoteAPIName is the form the chat API expects when adding a reaction:
// the unicode character or "name:id" for custom emotes.
func EmoteAPIName(emote string) string {
	name, id := emoteParts(emote)
	if id != "" {
		return name + ":" + id
	}
	return emoteUnicode(name)
}

// EmoteMatches reports whether a configured emote refers to the reacted emoji,
// given its name and API name. A custom emote configured with an id only
// matches that exact emoji.
func EmoteMatches(configured, name, apiName string) bool {
	cname, id := emoteParts(configured)
	if cname == "" {
		return false
	}
	if id != "" {
		return apiName == cname+":"+id
	}
	if cname == name {
		return true
	}
	u := withoutVariation(emoteUnicode(cname))
	return u == withoutVariation(name) || u == withoutVariation(apiName)
}
