package guild

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/database"
	"github.com/cufee/botto-calendar/gateway"
	"github.com/rs/zerolog"
)

// Store is the guild settings persistence used during onboarding.
type Store interface {
	GetGuildConfig(botID string, guildID uint64) (database.GuildConfig, error)
	CreateGuildConfig(gc database.GuildConfig) error
}

// Onboard builds the State of a guild that became available: settings are
// loaded (or a default record is created), the channel and roles are resolved
// and the board message is located or created.
func Onboard(ctx context.Context, gw gateway.Gateway, store Store, botID string, g *discordgo.Guild, log zerolog.Logger) (*State, error) {
	guildID, err := strconv.ParseUint(g.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("guild id %q: %w", g.ID, err)
	}
	log = log.With().Str("guild", g.ID).Logger()

	gc, err := loadOrCreate(store, botID, guildID, g.Name, log)
	if err != nil {
		return nil, err
	}
	st := NewState(gc, g.ID)

	channels := g.Channels
	if len(channels) == 0 {
		if channels, err = gw.GuildChannels(ctx, g.ID); err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
	}
	st.ChannelID = findChannel(channels, st.ChannelName)
	if st.ChannelID == "" {
		log.Warn().Str("channel", st.ChannelName).Msg("board channel not found, will retry every tick")
	}

	if err := resolveRoles(ctx, gw, st, log); err != nil {
		return nil, err
	}

	if st.ChannelID != "" {
		msg, err := acquireBoard(ctx, gw, st.ChannelID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to acquire board message, creating on first tick")
		} else {
			st.BoardMessageID = msg.ID
			seedReactions(ctx, gw, st, msg, log)
		}
	}

	log.Info().Str("channel", st.ChannelID).Str("board", st.BoardMessageID).Int("roles", len(st.Roles)).Msg("guild onboarded")
	return st, nil
}

func loadOrCreate(store Store, botID string, guildID uint64, name string, log zerolog.Logger) (database.GuildConfig, error) {
	gc, err := store.GetGuildConfig(botID, guildID)
	if err == nil {
		return gc, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return gc, fmt.Errorf("load guild settings: %w", err)
	}

	gc = database.GuildConfig{
		ID:          guildID,
		BotID:       botID,
		Name:        name,
		ChannelName: config.DefaultChannelName,
	}
	if err := store.CreateGuildConfig(gc); err != nil {
		// Lost a race with another onboarding of the same guild.
		if existing, gerr := store.GetGuildConfig(botID, guildID); gerr == nil {
			return existing, nil
		}
		return gc, fmt.Errorf("create guild settings: %w", err)
	}
	log.Info().Str("channel", gc.ChannelName).Msg("created default guild settings")
	return gc, nil
}

// resolveRoles finds each configured role by name, creating the missing ones.
func resolveRoles(ctx context.Context, gw gateway.Gateway, st *State, log zerolog.Logger) error {
	if len(st.Roles) == 0 {
		return nil
	}
	existing, err := gw.GuildRoles(ctx, st.GuildID)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	for _, role := range st.Roles {
		for _, r := range existing {
			if strings.EqualFold(r.Name, role.Name) {
				role.ID = r.ID
				break
			}
		}
		if role.ID != "" {
			continue
		}
		created, err := gw.CreateRole(ctx, st.GuildID, role.Name)
		if err != nil {
			log.Warn().Err(err).Str("role", role.Name).Msg("failed to create role")
			continue
		}
		role.ID = created.ID
		existing = append(existing, created)
		log.Info().Str("role", role.Name).Str("id", created.ID).Msg("role created")
	}
	return nil
}

// acquireBoard returns the bot's most recent message in the channel, reset to
// the startup text, or a freshly posted one.
func acquireBoard(ctx context.Context, gw gateway.Gateway, channelID string) (*discordgo.Message, error) {
	msgs, err := gw.ChannelMessages(ctx, channelID, config.BoardHistoryLimit)
	if err != nil {
		return nil, err
	}
	botID := gw.BotUserID()
	for _, m := range msgs {
		if m.Author == nil || m.Author.ID != botID {
			continue
		}
		if m.Content != config.StartupMessage {
			if err := gw.EditMessage(ctx, channelID, m.ID, config.StartupMessage); err != nil {
				if errors.Is(err, gateway.ErrNotFound) {
					break
				}
				return nil, err
			}
		}
		return m, nil
	}
	return gw.SendMessage(ctx, channelID, config.StartupMessage)
}
