package handlers

import (
	"context"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/board"
	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/gateway"
	"github.com/cufee/botto-calendar/guild"
	"github.com/rs/zerolog"
)

// Handlers - Gateway event and command handlers of one bot session
type Handlers struct {
	// BotID is the stored identity of the bot, not its user id.
	BotID    string
	Prefix   string
	Store    guild.Store
	Gateway  gateway.Gateway
	Registry *guild.Registry
	Fetcher  *calendar.Fetcher
	Renderer *board.Renderer
	Options  guild.Options
	Log      zerolog.Logger

	// ctx bounds onboarding and every runner started from this session.
	ctx    context.Context
	router *exrouter.Route
}

// Register - Attach every handler to the session, runners live until ctx is done
func (h *Handlers) Register(ctx context.Context, s *discordgo.Session) {
	h.ctx = ctx
	h.router = h.Router()
	s.AddHandler(h.GuildCreate)
	s.AddHandler(h.GuildDelete)
	s.AddHandler(h.ReactionAdd)
	s.AddHandler(h.ReactionRemove)
	s.AddHandler(h.ReactionRemoveAll)
	s.AddHandler(h.MessageCreate)
}

// GuildCreate - Onboard a guild that became available and start its runner
func (h *Handlers) GuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	// Fires again on every reconnect
	if !h.Registry.Claim(e.ID) {
		return
	}
	go h.onboard(e.Guild)
}

func (h *Handlers) onboard(g *discordgo.Guild) {
	ctx := h.context()
	st, err := guild.Onboard(ctx, h.Gateway, h.Store, h.BotID, g, h.Log)
	if err != nil {
		h.Registry.Release(g.ID)
		h.Log.Error().Err(err).Str("guild", g.ID).Msg("guild onboarding failed")
		return
	}
	if ctx.Err() != nil {
		h.Registry.Release(g.ID)
		return
	}
	if !h.Registry.Start(ctx, guild.NewRunner(st, h.Gateway, h.Fetcher, h.Renderer, h.Options, h.Log)) {
		h.Log.Info().Str("guild", g.ID).Msg("guild left during onboarding, runner not started")
	}
}

// GuildDelete - Stop the runner of a guild that left or went unavailable
func (h *Handlers) GuildDelete(s *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil {
		return
	}
	h.Registry.Stop(e.ID)
	h.Log.Info().Str("guild", e.ID).Bool("unavailable", e.Unavailable).Msg("guild runner stopped")
}

// ReactionAdd - Route a reaction to the guild runner
func (h *Handlers) ReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil || e.GuildID == "" {
		return
	}
	name, apiName := emojiNames(e.Emoji)
	h.Registry.Deliver(e.GuildID, guild.ReactionAdded{
		MessageID:    e.MessageID,
		UserID:       e.UserID,
		EmojiName:    name,
		EmojiAPIName: apiName,
	})
}

// ReactionRemove - Route a reaction removal to the guild runner
func (h *Handlers) ReactionRemove(s *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if e.MessageReaction == nil || e.GuildID == "" {
		return
	}
	name, apiName := emojiNames(e.Emoji)
	h.Registry.Deliver(e.GuildID, guild.ReactionRemoved{
		MessageID:    e.MessageID,
		UserID:       e.UserID,
		EmojiName:    name,
		EmojiAPIName: apiName,
	})
}

// ReactionRemoveAll - Route a reaction clear to the guild runner
func (h *Handlers) ReactionRemoveAll(s *discordgo.Session, e *discordgo.MessageReactionRemoveAll) {
	if e.MessageReaction == nil || e.GuildID == "" {
		return
	}
	h.Registry.Deliver(e.GuildID, guild.ReactionsCleared{MessageID: e.MessageID})
}

func (h *Handlers) context() context.Context {
	if h.ctx == nil {
		return context.Background()
	}
	return h.ctx
}
