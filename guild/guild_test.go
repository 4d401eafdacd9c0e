package guild

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/board"
	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/database"
	"github.com/cufee/botto-calendar/gateway"
	"github.com/cufee/botto-calendar/gateway/gatewaytest"
	"github.com/kyokomi/emoji/v2"
	"github.com/rs/zerolog"
)

const (
	botID     = "900"
	guildID   = "42"
	channelID = "77"
)

var raidICS = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//botto//test//EN",
	"BEGIN:VEVENT",
	"UID:raid",
	"SUMMARY:Raid Night",
	"LOCATION:Castle Black",
	"DTSTART:20261014T120000Z",
	"DTEND:20261014T130000Z",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func testConfig() database.GuildConfig {
	return database.GuildConfig{
		ID:          42,
		BotID:       botID,
		Name:        "Test Guild",
		ChannelName: config.DefaultChannelName,
		Template:    "[upcomingweek]\n{summary} :{emote}:\n{rolelist}",
		Roles: []database.RoleConfig{
			{Name: "raiders", DiscordText: "raids", Template: "{name} starts now", Emote: "crossed_swords", Filter: "location=castle", LeadTime: 15},
			{Name: "social", DiscordText: "socials", Template: "{name}!", Emote: ":beers:", Filter: "nolocation", LeadTime: 15},
		},
	}
}

func newFake() *gatewaytest.Fake {
	f := gatewaytest.New(botID)
	f.Channels = []*discordgo.Channel{
		{ID: "1", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: channelID, Name: config.DefaultChannelName, Type: discordgo.ChannelTypeGuildText},
	}
	return f
}

func serveICS(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestRunner(t *testing.T, gw gateway.Gateway, st *State, clk *clock, opts Options) *Runner {
	t.Helper()
	opts.Now = clk.now
	opts.Location = time.UTC
	return NewRunner(st, gw, calendar.NewFetcher(nil, "", zerolog.Nop()), board.NewRenderer(zerolog.Nop()), opts, zerolog.Nop())
}

func onlineState() *State {
	st := NewState(testConfig(), guildID)
	st.ChannelID = channelID
	st.Roles[0].ID = "r1"
	st.Roles[1].ID = "r2"
	return st
}

func TestTickCreatesAndRecreatesBoard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFake()
	st := NewState(testConfig(), guildID)
	st.Template = "Hello board"
	clk := &clock{t: time.Date(2026, time.October, 14, 12, 30, 0, 0, time.UTC)}
	r := newTestRunner(t, fake, st, clk, Options{})

	r.Tick(ctx)
	if st.ChannelID != channelID {
		t.Fatalf("channel = %q, want %q", st.ChannelID, channelID)
	}
	sent, _, _, _ := fake.Snapshot()
	if len(sent) != 1 || sent[0].Content != "Hello board" {
		t.Fatalf("sent = %+v, want one board message", sent)
	}
	first := st.BoardMessageID
	if first != sent[0].ID {
		t.Fatalf("board id = %q, want %q", first, sent[0].ID)
	}
	if len(fake.Reactions) != 2 {
		t.Fatalf("reactions = %d, want 2", len(fake.Reactions))
	}

	st.Template = "Updated"
	r.Tick(ctx)
	if got, ok := fake.Edit(first); !ok || got != "Updated" {
		t.Fatalf("edit = %q %v, want Updated", got, ok)
	}

	fake.FailEdit = fmt.Errorf("gone: %w", gateway.ErrNotFound)
	r.Tick(ctx)
	if st.BoardMessageID != "" {
		t.Fatalf("board id = %q after missing message, want empty", st.BoardMessageID)
	}
	fake.FailEdit = nil
	r.Tick(ctx)
	if st.BoardMessageID == "" || st.BoardMessageID == first {
		t.Fatalf("board not recreated, id = %q", st.BoardMessageID)
	}
}

func TestTickRendersCalendar(t *testing.T) {
	t.Parallel()
	fake := newFake()
	st := onlineState()
	st.CalendarURL = serveICS(t, raidICS)
	clk := &clock{t: time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)}
	r := newTestRunner(t, fake, st, clk, Options{})

	r.Tick(context.Background())
	sent, _, _, _ := fake.Snapshot()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	want := "Raid Night :crossed_swords:\n" +
		"Please react with :crossed_swords: to get notified about raids\n" +
		"Please react with :beers: to get notified about socials"
	if sent[0].Content != want {
		t.Fatalf("board =\n%s\nwant\n%s", sent[0].Content, want)
	}
}

func TestReactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFake()
	st := onlineState()
	st.BoardMessageID = "500"
	r := newTestRunner(t, fake, st, &clock{}, Options{})

	r.handle(ctx, ReactionAdded{MessageID: "500", UserID: "u1", EmojiName: "⚔️", EmojiAPIName: "⚔️"})
	r.handle(ctx, ReactionAdded{MessageID: "501", UserID: "u2", EmojiName: "⚔️", EmojiAPIName: "⚔️"})
	r.handle(ctx, ReactionAdded{MessageID: "500", UserID: botID, EmojiName: "🍻", EmojiAPIName: "🍻"})
	r.handle(ctx, ReactionAdded{MessageID: "500", UserID: "u3", EmojiName: "dragon", EmojiAPIName: "dragon:1"})
	r.handle(ctx, ReactionRemoved{MessageID: "500", UserID: "u1", EmojiName: "⚔️", EmojiAPIName: "⚔️"})

	_, grants, revokes, removed := fake.Snapshot()
	if len(grants) != 1 || grants[0] != "u1:r1" {
		t.Fatalf("grants = %v, want [u1:r1]", grants)
	}
	if len(revokes) != 1 || revokes[0] != "u1:r1" {
		t.Fatalf("revokes = %v, want [u1:r1]", revokes)
	}
	if len(removed) != 1 || removed[0].UserID != "u3" || removed[0].Emote != "dragon:1" {
		t.Fatalf("removed = %+v, want the dragon reaction of u3", removed)
	}
}

func TestShortcodeEmoteGrantsOnUnicodeReaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFake()
	cfg := testConfig()
	cfg.Template = "Hello board"
	cfg.Roles = []database.RoleConfig{{Name: "events", DiscordText: "events", Emote: "calendar", Filter: "nolocation"}}
	st := NewState(cfg, guildID)
	st.ChannelID = channelID
	st.Roles[0].ID = "r9"
	r := newTestRunner(t, fake, st, &clock{t: time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)}, Options{})

	r.Tick(ctx)
	unicode := emoji.CodeMap()[":calendar:"]
	if len(fake.Reactions) != 1 || fake.Reactions[0].Emote != unicode {
		t.Fatalf("seeded reactions = %+v, want %q", fake.Reactions, unicode)
	}

	r.handle(ctx, ReactionAdded{MessageID: st.BoardMessageID, UserID: "u1", EmojiName: unicode, EmojiAPIName: unicode})
	_, grants, _, removed := fake.Snapshot()
	if len(grants) != 1 || grants[0] != "u1:r9" {
		t.Fatalf("grants = %v, want [u1:r9]", grants)
	}
	if len(removed) != 0 {
		t.Fatalf("reaction removed: %+v", removed)
	}
}

func TestReactionsCleared(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFake()
	fake.Members = []*discordgo.Member{
		{User: &discordgo.User{ID: "u1"}, Roles: []string{"r1", "other"}},
		{User: &discordgo.User{ID: "u2"}, Roles: []string{"other"}},
		{User: &discordgo.User{ID: "u3"}, Roles: []string{"r1", "r2"}},
	}
	st := onlineState()
	st.BoardMessageID = "500"
	r := newTestRunner(t, fake, st, &clock{}, Options{RevokePerSecond: 100})

	r.handle(ctx, ReactionsCleared{MessageID: "499"})
	if len(r.pending) != 0 {
		t.Fatalf("clear on another message queued %+v", r.pending)
	}

	r.handle(ctx, ReactionsCleared{MessageID: "500"})
	if len(fake.Reactions) != 2 {
		t.Fatalf("reseeded %d reactions, want 2", len(fake.Reactions))
	}
	if len(r.pending) != 3 {
		t.Fatalf("queued %d revocations, want 3", len(r.pending))
	}

	// u3 reacts again before the queue reaches them.
	r.handle(ctx, ReactionAdded{MessageID: "500", UserID: "u3", EmojiName: "\u2694\ufe0f", EmojiAPIName: "\u2694\ufe0f"})
	for r.revokeNext(ctx) {
	}
	_, grants, revokes, _ := fake.Snapshot()
	if strings.Join(grants, ",") != "u3:r1" {
		t.Fatalf("grants = %v, want [u3:r1]", grants)
	}
	want := []string{"u1:r1", "u3:r2"}
	if strings.Join(revokes, ",") != strings.Join(want, ",") {
		t.Fatalf("revokes = %v, want %v", revokes, want)
	}
	if r.revokeDue() != nil {
		t.Fatal("revoke timer armed with an empty queue")
	}
}

func TestReactionsClearedDoesNotStallRunner(t *testing.T) {
	t.Parallel()
	fake := newFake()
	for i := 0; i < 10; i++ {
		fake.Members = append(fake.Members, &discordgo.Member{User: &discordgo.User{ID: fmt.Sprintf("u%d", i)}, Roles: []string{"r1"}})
	}
	st := onlineState()
	st.Template = "Hello board"
	r := newTestRunner(t, fake, st, &clock{t: time.Now()}, Options{TickInterval: time.Hour, RevokePerSecond: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	status := func() Status {
		t.Helper()
		reply := make(chan Status, 1)
		if !r.Deliver(StatusRequest{Reply: reply}) {
			t.Fatal("status request not delivered")
		}
		select {
		case s := <-reply:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("runner stalled")
		}
		return Status{}
	}

	msgID := status().BoardMessageID
	if msgID == "" {
		t.Fatal("board not created on the first tick")
	}
	r.Deliver(ReactionsCleared{MessageID: msgID})
	if s := status(); s.PendingRevokes == 0 {
		t.Fatalf("status = %+v, want queued revocations", s)
	}
}

func TestPingLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFake()
	st := onlineState()
	st.BoardMessageID = "500"
	fake.Messages[channelID] = []*discordgo.Message{{ID: "500", ChannelID: channelID}}
	st.CalendarURL = serveICS(t, raidICS)
	clk := &clock{t: time.Date(2026, time.October, 14, 11, 50, 0, 0, time.UTC)}
	r := newTestRunner(t, fake, st, clk, Options{})

	r.Tick(ctx)
	if st.Roles[0].Pinging() {
		t.Fatal("pinging before the event started")
	}

	clk.t = time.Date(2026, time.October, 14, 12, 30, 0, 0, time.UTC)
	r.Tick(ctx)
	raiders := st.Roles[0]
	if !raiders.Pinging() || raiders.Pinged == nil || raiders.Pinged.Summary != "Raid Night" {
		t.Fatalf("raiders not pinging: %+v", raiders)
	}
	if st.Roles[1].Pinging() {
		t.Fatal("social role pinged for a located event")
	}
	sent, _, _, _ := fake.Snapshot()
	last := sent[len(sent)-1]
	if last.Content != "<@&r1> Raid Night starts now" {
		t.Fatalf("ping = %q", last.Content)
	}

	clk.t = time.Date(2026, time.October, 14, 12, 45, 0, 0, time.UTC)
	r.Tick(ctx)
	if raiders.PingMessageID != last.ID {
		t.Fatal("ping replaced while the event is still running")
	}

	fake.FailDelete = fmt.Errorf("rate limited")
	clk.t = time.Date(2026, time.October, 14, 13, 0, 0, 0, time.UTC)
	r.Tick(ctx)
	if !raiders.Pinging() {
		t.Fatal("ping ended although the delete failed")
	}

	fake.FailDelete = nil
	r.Tick(ctx)
	if raiders.Pinging() || raiders.Pinged != nil {
		t.Fatalf("raiders still pinging after the event: %+v", raiders)
	}
	if len(fake.Deleted) != 1 || fake.Deleted[0] != last.ID {
		t.Fatalf("deleted = %v, want [%s]", fake.Deleted, last.ID)
	}
}

func TestPingLeadTime(t *testing.T) {
	t.Parallel()
	fake := newFake()
	st := onlineState()
	st.BoardMessageID = "500"
	fake.Messages[channelID] = []*discordgo.Message{{ID: "500", ChannelID: channelID}}
	st.CalendarURL = serveICS(t, raidICS)
	clk := &clock{t: time.Date(2026, time.October, 14, 11, 50, 0, 0, time.UTC)}
	r := newTestRunner(t, fake, st, clk, Options{HonorLeadTime: true})

	r.Tick(context.Background())
	if !st.Roles[0].Pinging() {
		t.Fatal("lead time not honored")
	}
}

func TestFeedBackoff(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	st := onlineState()
	st.CalendarURL = srv.URL
	r := newTestRunner(t, newFake(), st, &clock{}, Options{RefetchEvery: 8})

	for i := 0; i < 8; i++ {
		r.refreshFeed(context.Background())
	}
	// Attempts on ticks 1, 2, 4 and 8.
	if got := hits.Load(); got != 4 {
		t.Fatalf("fetch attempts = %d, want 4", got)
	}
	if st.feed.failures != 4 {
		t.Fatalf("failures = %d, want 4", st.feed.failures)
	}
}

func TestFeedKeepsLastGoodCopy(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, raidICS)
	}))
	t.Cleanup(srv.Close)

	st := onlineState()
	st.CalendarURL = srv.URL
	r := newTestRunner(t, newFake(), st, &clock{}, Options{RefetchEvery: 1})

	r.refreshFeed(context.Background())
	if st.feed.cal == nil || st.feed.cal.Len() != 1 {
		t.Fatal("calendar not loaded")
	}
	fail.Store(true)
	r.refreshFeed(context.Background())
	if st.feed.cal == nil || st.feed.cal.Len() != 1 || st.feed.failures != 1 {
		t.Fatalf("cached copy lost after failure, failures = %d", st.feed.failures)
	}
}

type memStore struct {
	records map[string]database.GuildConfig
}

func (m *memStore) GetGuildConfig(botID string, guildID uint64) (database.GuildConfig, error) {
	gc, ok := m.records[fmt.Sprintf("%s/%d", botID, guildID)]
	if !ok {
		return gc, database.ErrNotFound
	}
	return gc, nil
}

func (m *memStore) CreateGuildConfig(gc database.GuildConfig) error {
	m.records[fmt.Sprintf("%s/%d", gc.BotID, gc.ID)] = gc
	return nil
}

func TestOnboardCreatesDefaults(t *testing.T) {
	t.Parallel()
	fake := newFake()
	store := &memStore{records: map[string]database.GuildConfig{}}
	g := &discordgo.Guild{ID: guildID, Name: "Fresh Guild"}

	st, err := Onboard(context.Background(), fake, store, botID, g, zerolog.Nop())
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	gc, ok := store.records[botID+"/42"]
	if !ok || gc.ChannelName != config.DefaultChannelName || gc.CalendarURL != "" || gc.Name != "Fresh Guild" {
		t.Fatalf("default record = %+v", gc)
	}
	if st.ChannelID != channelID {
		t.Fatalf("channel = %q, want %q", st.ChannelID, channelID)
	}
	sent, _, _, _ := fake.Snapshot()
	if len(sent) != 1 || sent[0].Content != config.StartupMessage || st.BoardMessageID != sent[0].ID {
		t.Fatalf("startup message not posted: %+v", sent)
	}
}

func TestOnboardReusesBoardAndRoles(t *testing.T) {
	t.Parallel()
	fake := newFake()
	fake.Roles = []*discordgo.Role{{ID: "r1", Name: "Raiders"}}
	old := &discordgo.Message{
		ID:        "300",
		ChannelID: channelID,
		Content:   "old board",
		Author:    &discordgo.User{ID: botID},
		Reactions: []*discordgo.MessageReactions{{Me: true, Emoji: &discordgo.Emoji{Name: "⚔️"}}},
	}
	fake.Messages[channelID] = []*discordgo.Message{
		{ID: "301", ChannelID: channelID, Content: "hi", Author: &discordgo.User{ID: "u1"}},
		old,
	}
	store := &memStore{records: map[string]database.GuildConfig{botID + "/42": testConfig()}}

	st, err := Onboard(context.Background(), fake, store, botID, &discordgo.Guild{ID: guildID}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if st.BoardMessageID != "300" {
		t.Fatalf("board = %q, want 300", st.BoardMessageID)
	}
	if got, _ := fake.Edit("300"); got != config.StartupMessage {
		t.Fatalf("board edited to %q", got)
	}
	if st.Roles[0].ID != "r1" {
		t.Fatalf("raiders id = %q, want r1", st.Roles[0].ID)
	}
	if st.Roles[1].ID == "" || len(fake.Roles) != 2 || !fake.Roles[1].Mentionable {
		t.Fatalf("social role not created: %+v", fake.Roles)
	}
	if len(fake.Reactions) != 1 || fake.Reactions[0].Emote != "🍻" {
		t.Fatalf("seeded reactions = %+v, want only the missing one", fake.Reactions)
	}
	if sent, _, _, _ := fake.Snapshot(); len(sent) != 0 {
		t.Fatalf("sent %d messages, want none", len(sent))
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if !reg.Claim(guildID) || reg.Claim(guildID) {
		t.Fatal("claim must succeed exactly once")
	}
	if reg.Deliver(guildID, Refresh{}) {
		t.Fatal("delivered to a guild still onboarding")
	}

	r := newTestRunner(t, newFake(), onlineState(), &clock{t: time.Now()}, Options{TickInterval: time.Hour})
	if !reg.Start(context.Background(), r) {
		t.Fatal("claimed guild not started")
	}

	reply := make(chan Status, 1)
	if !reg.Deliver(guildID, StatusRequest{Reply: reply}) {
		t.Fatal("status request not delivered")
	}
	select {
	case s := <-reply:
		if s.GuildID != guildID || s.Ticks == 0 {
			t.Fatalf("status = %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no status reply")
	}

	reg.StopAll()
	if reg.Len() != 0 {
		t.Fatalf("len = %d after StopAll", reg.Len())
	}
	if _, ok := reg.Get(guildID); ok {
		t.Fatal("runner still registered")
	}
}

func TestRegistryStopDuringOnboarding(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if !reg.Claim(guildID) {
		t.Fatal("claim failed")
	}
	reg.Stop(guildID)

	fake := newFake()
	r := newTestRunner(t, fake, onlineState(), &clock{t: time.Now()}, Options{TickInterval: time.Hour})
	if reg.Start(context.Background(), r) {
		t.Fatal("runner started for a guild stopped while onboarding")
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d, want 0", reg.Len())
	}
	if _, ok := reg.Get(guildID); ok {
		t.Fatal("runner registered")
	}
	reg.StopAll()
	if sent, _, _, _ := fake.Snapshot(); len(sent) != 0 {
		t.Fatalf("stopped guild posted %d messages", len(sent))
	}

	// The guild can be onboarded again once it comes back.
	if !reg.Claim(guildID) {
		t.Fatal("claim after stop failed")
	}
	reg.Release(guildID)
}

func TestClampMessage(t *testing.T) {
	t.Parallel()
	if got := clampMessage(""); got != emptyBoard {
		t.Fatalf("empty = %q", got)
	}
	long := strings.Repeat("é", maxMessageLength+10)
	got := clampMessage(long)
	if n := len([]rune(got)); n != maxMessageLength {
		t.Fatalf("clamped to %d runes, want %d", n, maxMessageLength)
	}
}
