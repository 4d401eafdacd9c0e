// Package bot runs one gateway session per stored bot identity.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/board"
	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/database"
	"github.com/cufee/botto-calendar/gateway"
	"github.com/cufee/botto-calendar/guild"
	"github.com/cufee/botto-calendar/handlers"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Intents - Gateway events the board needs
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildMembers |
	discordgo.IntentMessageContent

// Store - Bot and guild records used by the manager
type Store interface {
	guild.Store
	GetBotConfigs() ([]database.BotIdentity, error)
}

// Session - A running bot session
type Session interface {
	Close() error
}

// Opener - Start a session for one identity, runners stop when ctx is done
type Opener func(ctx context.Context, bot database.BotIdentity) (Session, error)

// Manager - Keeps one session per stored bot identity, picking up new ones on a schedule
type Manager struct {
	store Store
	cfg   *config.Config
	log   zerolog.Logger
	open  Opener

	cron *cron.Cron

	mu   sync.Mutex
	ctx  context.Context
	bots map[string]*running
}

type running struct {
	token   string
	session Session
	cancel  context.CancelFunc
}

// NewManager - Create a manager opening real gateway sessions
func NewManager(store Store, cfg *config.Config, log zerolog.Logger) *Manager {
	m := &Manager{
		store: store,
		cfg:   cfg,
		log:   log,
		bots:  make(map[string]*running),
	}
	m.open = m.openSession
	return m
}

// WithOpener - Replace the session opener
func (m *Manager) WithOpener(open Opener) *Manager {
	m.open = open
	return m
}

// Start - Open sessions for all stored bots and schedule the rescan
func (m *Manager) Start(ctx context.Context) error {
	loc, err := m.cfg.Location()
	if err != nil {
		m.log.Warn().Err(err).Msg("falling back to UTC")
	}

	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if err := m.Rescan(); err != nil {
		return err
	}

	m.cron = cron.New(cron.WithLocation(loc))
	if _, err := m.cron.AddFunc(m.cfg.Scheduler.BotRescan, func() {
		if err := m.Rescan(); err != nil {
			m.log.Warn().Err(err).Msg("bot rescan failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule bot rescan %q: %w", m.cfg.Scheduler.BotRescan, err)
	}
	m.cron.Start()
	return nil
}

// Rescan - Start sessions for new identities, restart changed ones and stop removed ones
func (m *Manager) Rescan() error {
	bots, err := m.store.GetBotConfigs()
	if err != nil {
		return fmt.Errorf("load bots: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return errors.New("manager not started")
	}

	seen := make(map[string]bool, len(bots))
	for _, b := range bots {
		seen[b.ID] = true
		if r, ok := m.bots[b.ID]; ok {
			if r.token == b.Token {
				continue
			}
			m.log.Info().Str("bot", b.ID).Msg("bot token changed, restarting session")
			m.stopLocked(b.ID)
		}
		if b.Token == "" {
			m.log.Warn().Str("bot", b.ID).Msg("bot has no token, skipped")
			continue
		}

		ctx, cancel := context.WithCancel(m.ctx)
		s, err := m.open(ctx, b)
		if err != nil {
			cancel()
			m.log.Error().Err(err).Str("bot", b.ID).Msg("failed to open bot session")
			continue
		}
		m.bots[b.ID] = &running{token: b.Token, session: s, cancel: cancel}
		m.log.Info().Str("bot", b.ID).Str("name", b.Name).Msg("bot session started")
	}

	for id := range m.bots {
		if !seen[id] {
			m.log.Info().Str("bot", id).Msg("bot removed, stopping session")
			m.stopLocked(id)
		}
	}
	return nil
}

// Running - Ids of bots with an open session
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.bots))
	for id := range m.bots {
		ids = append(ids, id)
	}
	return ids
}

// Stop - Stop the rescan and close every session
func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.bots {
		m.stopLocked(id)
	}
}

func (m *Manager) stopLocked(id string) {
	r, ok := m.bots[id]
	if !ok {
		return
	}
	delete(m.bots, id)
	r.cancel()
	if err := r.session.Close(); err != nil {
		m.log.Warn().Err(err).Str("bot", id).Msg("failed to close bot session")
	}
}

// discordSession ties a gateway connection to the runners it started.
type discordSession struct {
	s        *discordgo.Session
	registry *guild.Registry
}

func (d *discordSession) Close() error {
	err := d.s.Close()
	d.registry.StopAll()
	return err
}

func (m *Manager) openSession(ctx context.Context, b database.BotIdentity) (Session, error) {
	s, err := discordgo.New("Bot " + b.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true

	loc, _ := m.cfg.Location()
	log := m.log.With().Str("bot", b.ID).Logger()
	reg := guild.NewRegistry()
	h := &handlers.Handlers{
		BotID:    b.ID,
		Prefix:   m.cfg.Commands.Prefix,
		Store:    m.store,
		Gateway:  gateway.New(s),
		Registry: reg,
		Fetcher:  calendar.NewFetcher(&http.Client{Timeout: m.cfg.Calendar.Timeout}, m.cfg.Calendar.CacheDir, log),
		Renderer: board.NewRenderer(log),
		Options: guild.Options{
			TickInterval:    m.cfg.Scheduler.TickInterval,
			RefetchEvery:    m.cfg.Scheduler.RefetchEvery,
			HonorLeadTime:   m.cfg.Scheduler.HonorLeadTime,
			RevokePerSecond: m.cfg.Gateway.RevokePerSecond,
			Location:        loc,
			Now:             time.Now,
		},
		Log: log,
	}
	h.Register(ctx, s)

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("open gateway: %w", err)
	}
	return &discordSession{s: s, registry: reg}, nil
}
