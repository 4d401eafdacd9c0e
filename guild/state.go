// Package guild runs one board per guild: onboarding from stored settings,
// the periodic update loop and the reaction driven role handling.
//
// Each guild's State is owned by exactly one Runner goroutine. Gateway
// callbacks never touch it directly, they post events to the runner's inbox.
package guild

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/board"
	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/database"
)

// RoleRuntime is a notification role with its resolved platform id and ping state.
// PingMessageID is set iff Pinged is set.
type RoleRuntime struct {
	board.Role

	// ID of the platform role, empty if it could not be resolved or created.
	ID       string
	LeadTime time.Duration
	// Template is the ping text; {name} is replaced with the event summary.
	Template string

	PingMessageID string
	Pinged        *calendar.Occurrence
}

// Pinging reports whether a ping message is outstanding.
func (r *RoleRuntime) Pinging() bool {
	return r.PingMessageID != ""
}

func (r *RoleRuntime) startPing(messageID string, o calendar.Occurrence) {
	r.PingMessageID = messageID
	r.Pinged = &o
}

func (r *RoleRuntime) endPing() {
	r.PingMessageID = ""
	r.Pinged = nil
}

// pingText is the role mention followed by the ping template.
func (r *RoleRuntime) pingText(o calendar.Occurrence) string {
	mention := (&discordgo.Role{ID: r.ID}).Mention()
	return mention + " " + strings.ReplaceAll(r.Template, "{name}", o.Summary)
}

// State is the runtime state of one guild.
type State struct {
	GuildID string
	Name    string

	// ChannelID is empty while the configured channel cannot be found.
	ChannelID   string
	ChannelName string
	// BoardMessageID is empty when the board must be (re)created on the next tick.
	BoardMessageID string

	CalendarURL string
	Template    string
	Roles       []*RoleRuntime

	feed feed
}

// NewState builds a State from stored settings. Platform ids are filled in
// by onboarding.
func NewState(gc database.GuildConfig, guildID string) *State {
	st := &State{
		GuildID:     guildID,
		Name:        gc.Name,
		ChannelName: gc.ChannelName,
		CalendarURL: gc.CalendarURL,
		Template:    gc.Template,
	}
	for _, rc := range gc.Roles {
		st.Roles = append(st.Roles, &RoleRuntime{
			Role: board.Role{
				Name:        rc.Name,
				Emote:       rc.Emote,
				DiscordText: rc.DiscordText,
				Filter:      board.ParseRoleFilter(rc.Filter),
			},
			LeadTime: time.Duration(rc.LeadTime) * time.Minute,
			Template: rc.Template,
		})
	}
	return st
}

func (s *State) boardRoles() []board.Role {
	roles := make([]board.Role, 0, len(s.Roles))
	for _, r := range s.Roles {
		roles = append(roles, r.Role)
	}
	return roles
}

// rolesForEmoji returns every role whose emote is the reacted emoji.
func (s *State) rolesForEmoji(name, apiName string) []*RoleRuntime {
	var out []*RoleRuntime
	for _, r := range s.Roles {
		if board.EmoteMatches(r.Emote, name, apiName) {
			out = append(out, r)
		}
	}
	return out
}

func findChannel(channels []*discordgo.Channel, name string) string {
	want := strings.ToLower(strings.TrimPrefix(name, "#"))
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText && c.Name == want {
			return c.ID
		}
	}
	return ""
}
