// Package gateway narrows the chat platform session to the calls the board
// needs, so guild logic can run against a fake in tests.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// ErrNotFound - The referenced message, role or member no longer exists
var ErrNotFound = errors.New("not found")

// memberPageSize is the largest page the members endpoint returns.
const memberPageSize = 1000

// Gateway - Chat platform operations used by guild runners
type Gateway interface {
	// BotUserID is the user id of the connected bot account.
	BotUserID() string

	GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	CreateRole(ctx context.Context, guildID, name string) (*discordgo.Role, error)
	// GuildMembers lists every member of the guild, following pagination.
	GuildMembers(ctx context.Context, guildID string) ([]*discordgo.Member, error)
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error

	// ChannelMessages returns up to limit recent messages, newest first.
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error)
	SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	AddReaction(ctx context.Context, channelID, messageID, emote string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emote, userID string) error
}

// Session - Gateway backed by a discordgo session
type Session struct {
	s *discordgo.Session
}

// New - Wrap an open discordgo session
func New(s *discordgo.Session) *Session {
	return &Session{s: s}
}

// BotUserID - User id of the bot, empty before the session is ready
func (g *Session) BotUserID() string {
	if g.s.State == nil || g.s.State.User == nil {
		return ""
	}
	return g.s.State.User.ID
}

func (g *Session) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	chans, err := g.s.GuildChannels(guildID, discordgo.WithContext(ctx))
	return chans, wrap(err)
}

func (g *Session) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	roles, err := g.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	return roles, wrap(err)
}

// CreateRole - Create a mentionable role so pings reach its members
func (g *Session) CreateRole(ctx context.Context, guildID, name string) (*discordgo.Role, error) {
	mentionable := true
	role, err := g.s.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	}, discordgo.WithContext(ctx))
	return role, wrap(err)
}

func (g *Session) GuildMembers(ctx context.Context, guildID string) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		page, err := g.s.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return all, wrap(err)
		}
		all = append(all, page...)
		if len(page) < memberPageSize || page[len(page)-1].User == nil {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (g *Session) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	return wrap(g.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (g *Session) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	return wrap(g.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (g *Session) ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	msgs, err := g.s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	return msgs, wrap(err)
}

func (g *Session) SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	msg, err := g.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return msg, wrap(err)
}

func (g *Session) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	_, err := g.s.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
	return wrap(err)
}

func (g *Session) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return wrap(g.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (g *Session) AddReaction(ctx context.Context, channelID, messageID, emote string) error {
	return wrap(g.s.MessageReactionAdd(channelID, messageID, emote, discordgo.WithContext(ctx)))
}

func (g *Session) RemoveReaction(ctx context.Context, channelID, messageID, emote, userID string) error {
	return wrap(g.s.MessageReactionRemove(channelID, messageID, emote, userID, discordgo.WithContext(ctx)))
}

// wrap maps 404 responses onto ErrNotFound, keeping the REST error in the chain.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return &notFoundError{err: err}
	}
	return err
}

type notFoundError struct {
	err error
}

func (e *notFoundError) Error() string { return e.err.Error() }

func (e *notFoundError) Unwrap() []error { return []error{ErrNotFound, e.err} }
