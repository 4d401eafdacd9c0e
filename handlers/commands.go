package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/guild"
)

// statusTimeout bounds the wait for a busy runner to answer.
const statusTimeout = 5 * time.Second

// Router - Build the command router, commands follow the configured prefix
func (h *Handlers) Router() *exrouter.Route {
	router := exrouter.New()
	router.On("status", h.StatusHandler).Desc("show the board state of this server")
	router.On("refresh", h.RefreshHandler).Desc("download the calendar and update the board now")
	router.On("help", h.HelpHandler).Desc("list commands")
	return router
}

// MessageCreate - Dispatch prefixed messages to the command router
func (h *Handlers) MessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if !strings.HasPrefix(m.Content, h.Prefix) {
		return
	}
	if h.router == nil {
		return
	}
	if err := h.router.FindAndExecute(s, h.Prefix, s.State.User.ID, m.Message); err != nil {
		h.Log.Debug().Err(err).Str("content", m.Content).Msg("no command matched")
	}
}

// StatusHandler - Reply with the runner state of this guild
func (h *Handlers) StatusHandler(ctx *exrouter.Context) {
	if !canManage(ctx) {
		replyDel(ctx, "You need to have Manage Server perms to use this command.", 15)
		return
	}

	reply := make(chan guild.Status, 1)
	if !h.Registry.Deliver(ctx.Msg.GuildID, guild.StatusRequest{Reply: reply}) {
		replyDel(ctx, "The board of this server is not running yet.", 15)
		return
	}

	select {
	case st := <-reply:
		replyDel(ctx, formatStatus(st), 60)
	case <-time.After(statusTimeout):
		replyDel(ctx, "The board is busy, try again in a moment.", 15)
	}
}

// RefreshHandler - Force a calendar download and board update
func (h *Handlers) RefreshHandler(ctx *exrouter.Context) {
	if !canManage(ctx) {
		replyDel(ctx, "You need to have Manage Server perms to use this command.", 15)
		return
	}
	// Delete command message
	ctx.Ses.ChannelMessageDelete(ctx.Msg.ChannelID, ctx.Msg.ID)

	if !h.Registry.Deliver(ctx.Msg.GuildID, guild.Refresh{}) {
		replyDel(ctx, "The board of this server is not running yet.", 15)
		return
	}
	replyDel(ctx, "Refreshing the board.", 5)
}

// HelpHandler - List the commands
func (h *Handlers) HelpHandler(ctx *exrouter.Context) {
	var b strings.Builder
	b.WriteString("**Board commands:**\n")
	for _, r := range h.router.Routes {
		fmt.Fprintf(&b, "`%s %s` - %s\n", h.Prefix, r.Name, r.Description)
	}
	replyDel(ctx, b.String(), 30)
}

func formatStatus(st guild.Status) string {
	var b strings.Builder
	b.WriteString("**Board status**\n")
	if st.ChannelID == "" {
		b.WriteString("Channel: not found\n")
	} else {
		fmt.Fprintf(&b, "Channel: <#%s>\n", st.ChannelID)
	}
	if st.BoardMessageID == "" {
		b.WriteString("Board message: will be created on the next update\n")
	}
	switch {
	case !st.HasCalendarURL:
		b.WriteString("Calendar: no URL configured\n")
	case st.FetchedAt.IsZero():
		fmt.Fprintf(&b, "Calendar: not downloaded yet, %d failed attempts\n", st.FetchFailures)
	default:
		fmt.Fprintf(&b, "Calendar: %d events, last checked <t:%d:R>", st.Events, st.FetchedAt.Unix())
		if st.FetchFailures > 0 {
			fmt.Fprintf(&b, ", %d failed attempts since", st.FetchFailures)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Updates: %d", st.Ticks)
	if len(st.Pinging) > 0 {
		fmt.Fprintf(&b, "\nActive pings: %s", strings.Join(st.Pinging, ", "))
	}
	if st.PendingRevokes > 0 {
		fmt.Fprintf(&b, "\nRoles left to remove after a reaction clear: %d", st.PendingRevokes)
	}
	return b.String()
}
