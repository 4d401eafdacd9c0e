package guild

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/board"
	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/gateway"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// inboxSize bounds the events queued for a runner between two ticks.
const inboxSize = 256

// maxMessageLength is the platform's message content limit, in characters.
const maxMessageLength = 2000

// emptyBoard replaces a render that produced no text, empty messages are rejected.
const emptyBoard = "There are no events to show."

// Options configures a Runner.
type Options struct {
	TickInterval time.Duration
	// RefetchEvery is the number of ticks between calendar downloads.
	RefetchEvery int
	// HonorLeadTime opens the ping window LeadTime before an occurrence starts.
	HonorLeadTime bool
	// RevokePerSecond paces the revocations done after a reaction clear.
	RevokePerSecond int
	// Location is used for week/month boundaries and time formatting.
	Location *time.Location
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

func (o *Options) normalize() {
	if o.TickInterval <= 0 {
		o.TickInterval = 10 * time.Second
	}
	if o.RefetchEvery <= 0 {
		o.RefetchEvery = 10
	}
	if o.RevokePerSecond <= 0 {
		o.RevokePerSecond = 50
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Runner owns one guild's State and drives its update loop.
type Runner struct {
	state    *State
	gw       gateway.Gateway
	fetcher  *calendar.Fetcher
	renderer *board.Renderer
	opts     Options
	revoke   *rate.Limiter
	inbox    chan Event
	log      zerolog.Logger

	ticks    uint64
	lastTick time.Time

	pending     []revocation
	revokeTimer *time.Timer
}

// NewRunner creates a Runner for an onboarded guild.
func NewRunner(st *State, gw gateway.Gateway, fetcher *calendar.Fetcher, renderer *board.Renderer, opts Options, log zerolog.Logger) *Runner {
	opts.normalize()
	return &Runner{
		state:    st,
		gw:       gw,
		fetcher:  fetcher,
		renderer: renderer,
		opts:     opts,
		revoke:   rate.NewLimiter(rate.Limit(opts.RevokePerSecond), opts.RevokePerSecond),
		inbox:    make(chan Event, inboxSize),
		log:      log.With().Str("guild", st.GuildID).Logger(),
	}
}

// GuildID is the id of the guild this runner serves.
func (r *Runner) GuildID() string {
	return r.state.GuildID
}

// Deliver queues ev for the runner without blocking. It reports false when
// the inbox is full and the event was dropped.
func (r *Runner) Deliver(ev Event) bool {
	select {
	case r.inbox <- ev:
		return true
	default:
		r.log.Warn().Str("event", ev.kind()).Msg("inbox full, event dropped")
		return false
	}
}

// Run ticks immediately and then every TickInterval until ctx is cancelled,
// handling inbox events between ticks.
func (r *Runner) Run(ctx context.Context) {
	if len(r.state.feed.text) == 0 {
		if body, ok := r.fetcher.Cached(r.state.CalendarURL); ok {
			r.seedFeed(body)
		}
	}

	r.log.Info().Dur("interval", r.opts.TickInterval).Int("refetch_every", r.opts.RefetchEvery).Msg("guild runner started")
	defer r.log.Info().Msg("guild runner stopped")

	r.Tick(ctx)
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()
	defer func() {
		if r.revokeTimer != nil {
			r.revokeTimer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		case ev := <-r.inbox:
			r.handle(ctx, ev)
		case <-r.revokeDue():
			r.revokeNext(ctx)
		}
	}
}

// Tick runs one update: refresh the feed, render, update the board and
// advance the ping lifecycle.
func (r *Runner) Tick(ctx context.Context) {
	now := r.opts.Now().In(r.opts.Location)
	r.ticks++
	r.lastTick = now

	r.refreshFeed(ctx)
	if ctx.Err() != nil {
		return
	}

	text := r.renderer.Render(r.state.Template, r.state.feed.cal, r.state.boardRoles(), now)
	r.updateBoard(ctx, clampMessage(text))
	r.updatePings(ctx, now)
}

func (r *Runner) handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case ReactionAdded:
		r.reactionAdded(ctx, e)
	case ReactionRemoved:
		r.reactionRemoved(ctx, e)
	case ReactionsCleared:
		r.reactionsCleared(ctx, e)
	case Refresh:
		r.state.feed.nextIn = 0
		r.state.feed.failures = 0
		r.Tick(ctx)
	case StatusRequest:
		select {
		case e.Reply <- r.status():
		default:
			r.log.Debug().Msg("status reply dropped, nobody waiting")
		}
	}
}

func (r *Runner) updateBoard(ctx context.Context, text string) {
	st := r.state
	if st.ChannelID == "" && !r.resolveChannel(ctx) {
		return
	}

	if st.BoardMessageID == "" {
		msg, err := r.gw.SendMessage(ctx, st.ChannelID, text)
		if err != nil {
			r.log.Warn().Err(err).Msg("failed to create board message")
			return
		}
		st.BoardMessageID = msg.ID
		r.log.Info().Str("message", msg.ID).Msg("board message created")
		r.seedReactions(ctx, msg)
		return
	}

	err := r.gw.EditMessage(ctx, st.ChannelID, st.BoardMessageID, text)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		r.log.Warn().Str("message", st.BoardMessageID).Msg("board message gone, recreating on next tick")
		st.BoardMessageID = ""
	case err != nil:
		r.log.Warn().Err(err).Msg("failed to update board message")
	}
}

// resolveChannel looks the configured channel up again; used when it was
// missing at onboarding.
func (r *Runner) resolveChannel(ctx context.Context) bool {
	channels, err := r.gw.GuildChannels(ctx, r.state.GuildID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list channels")
		return false
	}
	id := findChannel(channels, r.state.ChannelName)
	if id == "" {
		r.log.Warn().Str("channel", r.state.ChannelName).Msg("board channel not found")
		return false
	}
	r.state.ChannelID = id
	r.state.BoardMessageID = ""
	return true
}

// seedReactions adds every role emote the bot has not reacted with yet.
func (r *Runner) seedReactions(ctx context.Context, msg *discordgo.Message) {
	seedReactions(ctx, r.gw, r.state, msg, r.log)
}

func seedReactions(ctx context.Context, gw gateway.Gateway, st *State, msg *discordgo.Message, log zerolog.Logger) {
	for _, role := range st.Roles {
		if role.Emote == "" || hasOwnReaction(msg, role.Emote) {
			continue
		}
		if err := gw.AddReaction(ctx, st.ChannelID, msg.ID, board.EmoteAPIName(role.Emote)); err != nil {
			log.Warn().Err(err).Str("role", role.Name).Str("emote", role.Emote).Msg("failed to add role reaction")
		}
	}
}

func hasOwnReaction(msg *discordgo.Message, emote string) bool {
	for _, re := range msg.Reactions {
		if re.Me && re.Emoji != nil && board.EmoteMatches(emote, re.Emoji.Name, re.Emoji.APIName()) {
			return true
		}
	}
	return false
}

func clampMessage(text string) string {
	if text == "" {
		return emptyBoard
	}
	if utf8.RuneCountInString(text) <= maxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxMessageLength-1]) + "…"
}

func (r *Runner) status() Status {
	st := r.state
	s := Status{
		GuildID:        st.GuildID,
		ChannelID:      st.ChannelID,
		BoardMessageID: st.BoardMessageID,
		Ticks:          r.ticks,
		LastTick:       r.lastTick,
		FetchedAt:      st.feed.fetchedAt,
		FetchFailures:  st.feed.failures,
		HasCalendarURL: st.CalendarURL != "",
		PendingRevokes: len(r.pending),
	}
	if st.feed.cal != nil {
		s.Events = st.feed.cal.Len()
	}
	for _, role := range st.Roles {
		if role.Pinging() {
			s.Pinging = append(s.Pinging, role.Name)
		}
	}
	return s
}
