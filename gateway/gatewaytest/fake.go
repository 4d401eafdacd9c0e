// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-calendar/gateway"
)

// Reaction is a reaction placed through the fake.
type Reaction struct {
	ChannelID, MessageID, Emote, UserID string
}

// Fake records every mutation and serves reads from its fields.
type Fake struct {
	mu sync.Mutex

	BotID    string
	Channels []*discordgo.Channel
	Roles    []*discordgo.Role
	Members  []*discordgo.Member
	// Messages per channel, newest first.
	Messages map[string][]*discordgo.Message

	Sent      []*discordgo.Message
	Edits     map[string]string
	Deleted   []string
	Reactions []Reaction
	Removed   []Reaction
	Grants    []string
	Revokes   []string

	// FailEdit makes EditMessage fail with this error.
	FailEdit error
	// FailDelete makes DeleteMessage fail with this error.
	FailDelete error

	nextID int
}

// New returns a Fake for a bot account with the given user id.
func New(botID string) *Fake {
	return &Fake{
		BotID:    botID,
		Messages: make(map[string][]*discordgo.Message),
		Edits:    make(map[string]string),
		nextID:   1000,
	}
}

func (f *Fake) id() string {
	f.nextID++
	return fmt.Sprint(f.nextID)
}

func (f *Fake) BotUserID() string { return f.BotID }

func (f *Fake) GuildChannels(_ context.Context, _ string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Channel(nil), f.Channels...), nil
}

func (f *Fake) GuildRoles(_ context.Context, _ string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Role(nil), f.Roles...), nil
}

func (f *Fake) CreateRole(_ context.Context, _ string, name string) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &discordgo.Role{ID: f.id(), Name: name, Mentionable: true}
	f.Roles = append(f.Roles, r)
	return r, nil
}

func (f *Fake) GuildMembers(_ context.Context, _ string) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Member(nil), f.Members...), nil
}

// GrantRole records "user:role" and adds the role to a known member.
func (f *Fake) GrantRole(_ context.Context, _ string, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Grants = append(f.Grants, userID+":"+roleID)
	for _, m := range f.Members {
		if m.User != nil && m.User.ID == userID {
			m.Roles = append(m.Roles, roleID)
		}
	}
	return nil
}

// RevokeRole records "user:role" and drops the role from a known member.
func (f *Fake) RevokeRole(_ context.Context, _ string, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Revokes = append(f.Revokes, userID+":"+roleID)
	for _, m := range f.Members {
		if m.User == nil || m.User.ID != userID {
			continue
		}
		kept := make([]string, 0, len(m.Roles))
		for _, r := range m.Roles {
			if r != roleID {
				kept = append(kept, r)
			}
		}
		m.Roles = kept
	}
	return nil
}

func (f *Fake) ChannelMessages(_ context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]*discordgo.Message(nil), msgs...), nil
}

func (f *Fake) SendMessage(_ context.Context, channelID, content string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &discordgo.Message{
		ID:        f.id(),
		ChannelID: channelID,
		Content:   content,
		Author:    &discordgo.User{ID: f.BotID},
	}
	f.Sent = append(f.Sent, msg)
	f.Messages[channelID] = append([]*discordgo.Message{msg}, f.Messages[channelID]...)
	return msg, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailEdit != nil {
		return f.FailEdit
	}
	if f.find(channelID, messageID) == nil {
		return fmt.Errorf("edit %s: %w", messageID, gateway.ErrNotFound)
	}
	f.Edits[messageID] = content
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return f.FailDelete
	}
	f.Deleted = append(f.Deleted, messageID)
	msgs := f.Messages[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			f.Messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %s: %w", messageID, gateway.ErrNotFound)
}

func (f *Fake) AddReaction(_ context.Context, channelID, messageID, emote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions = append(f.Reactions, Reaction{ChannelID: channelID, MessageID: messageID, Emote: emote, UserID: f.BotID})
	if m := f.find(channelID, messageID); m != nil {
		m.Reactions = append(m.Reactions, &discordgo.MessageReactions{Count: 1, Me: true, Emoji: &discordgo.Emoji{Name: emote}})
	}
	return nil
}

func (f *Fake) RemoveReaction(_ context.Context, channelID, messageID, emote, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, Reaction{ChannelID: channelID, MessageID: messageID, Emote: emote, UserID: userID})
	return nil
}

// Snapshot returns copies of the recorded mutation lists.
func (f *Fake) Snapshot() (sent []*discordgo.Message, grants, revokes []string, removed []Reaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(sent, f.Sent...), append(grants, f.Grants...), append(revokes, f.Revokes...), append(removed, f.Removed...)
}

// Edit returns the last content an edit set on messageID.
func (f *Fake) Edit(messageID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Edits[messageID]
	return s, ok
}

func (f *Fake) find(channelID, messageID string) *discordgo.Message {
	for _, m := range f.Messages[channelID] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

var _ gateway.Gateway = (*Fake)(nil)
