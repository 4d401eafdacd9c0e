// Package board turns a board template, a parsed calendar and the configured
// roles into the text of a guild's board message.
//
// Template grammar, one construct per line:
//
//	[range|filter|filter]   directive header, consumes the next line
//	{summary} at {start|time}   value template, expanded once per occurrence
//	{rolelist}              one opt-in prompt per role
//
// Every other line is copied unchanged.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/config"
	"github.com/rs/zerolog"
)

const roleListLine = "{rolelist}"

// Renderer renders board templates. It is safe for concurrent use.
type Renderer struct {
	log zerolog.Logger
}

// NewRenderer returns a Renderer reporting unknown tokens to log.
func NewRenderer(log zerolog.Logger) *Renderer {
	return &Renderer{log: log}
}

// Render expands tmpl against cal at instant now. A nil cal renders every
// directive block empty.
func (r *Renderer) Render(tmpl string, cal *calendar.Calendar, roles []Role, now time.Time) string {
	lines := strings.Split(strings.ReplaceAll(tmpl, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case isDirective(line):
			if i+1 >= len(lines) {
				r.log.Warn().Str("header", line).Msg("directive header without value line, dropped")
				continue
			}
			i++
			out = append(out, r.expandBlock(line, lines[i], cal, roles, now)...)
		case line == roleListLine:
			for _, role := range roles {
				out = append(out, fmt.Sprintf(config.RoleListLine, EmoteName(role.Emote), role.DiscordText))
			}
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func (r *Renderer) expandBlock(header, value string, cal *calendar.Calendar, roles []Role, now time.Time) []string {
	tokens := strings.Split(header[1:len(header)-1], "|")

	rng := calendar.ParseRange(tokens[0])
	if rng.Kind == calendar.RangeUnknown {
		r.log.Warn().Str("range", rng.Raw).Msg("unknown range")
		return nil
	}
	filters := make([]calendar.Filter, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		f := calendar.ParseFilter(tok)
		if f.Kind == calendar.FilterUnknown {
			r.log.Warn().Str("filter", f.Raw).Msg("unknown filter")
		}
		filters = append(filters, f)
	}

	occs := cal.Resolve(rng, filters, now)
	rendered := make([]string, 0, len(occs))
	for _, o := range occs {
		rendered = append(rendered, expandLine(value, o, roles, now, r.unknownTag))
	}
	return rendered
}

func (r *Renderer) unknownTag(t Tag) {
	r.log.Warn().Str("tag", t.Raw).Msg("unknown tag")
}

func isDirective(line string) bool {
	return len(line) >= 2 && strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
}
