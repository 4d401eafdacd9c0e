package guild

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// reactionAdded grants every role mapped to the emoji. A reaction that maps to
// no role is removed again so the board only shows valid choices.
func (r *Runner) reactionAdded(ctx context.Context, e ReactionAdded) {
	st := r.state
	if !r.ownsReaction(e.MessageID, e.UserID) {
		return
	}

	roles := st.rolesForEmoji(e.EmojiName, e.EmojiAPIName)
	if len(roles) == 0 {
		if err := r.gw.RemoveReaction(ctx, st.ChannelID, e.MessageID, e.EmojiAPIName, e.UserID); err != nil {
			r.log.Warn().Err(err).Str("emoji", e.EmojiName).Msg("failed to remove unknown reaction")
		}
		return
	}

	for _, role := range roles {
		if role.ID == "" {
			continue
		}
		if err := r.gw.GrantRole(ctx, st.GuildID, e.UserID, role.ID); err != nil {
			r.log.Warn().Err(err).Str("user", e.UserID).Str("role", role.Name).Msg("failed to grant role")
			continue
		}
		r.dropRevocation(e.UserID, role.ID)
		r.log.Debug().Str("user", e.UserID).Str("role", role.Name).Msg("role granted")
	}
}

func (r *Runner) reactionRemoved(ctx context.Context, e ReactionRemoved) {
	st := r.state
	if !r.ownsReaction(e.MessageID, e.UserID) {
		return
	}

	for _, role := range st.rolesForEmoji(e.EmojiName, e.EmojiAPIName) {
		if role.ID == "" {
			continue
		}
		if err := r.gw.RevokeRole(ctx, st.GuildID, e.UserID, role.ID); err != nil {
			r.log.Warn().Err(err).Str("user", e.UserID).Str("role", role.Name).Msg("failed to revoke role")
			continue
		}
		r.log.Debug().Str("user", e.UserID).Str("role", role.Name).Msg("role revoked")
	}
}

// revocation is one role removal queued by a reaction clear.
type revocation struct {
	userID string
	roleID string
	role   string
}

// reactionsCleared queues the board roles of every member holding one for
// revocation and puts the bot's reactions back. The queue is drained by Run
// at the pace of the revoke limiter, between other events and ticks.
func (r *Runner) reactionsCleared(ctx context.Context, e ReactionsCleared) {
	st := r.state
	if st.BoardMessageID == "" || e.MessageID != st.BoardMessageID {
		return
	}

	byID := make(map[string]*RoleRuntime, len(st.Roles))
	for _, role := range st.Roles {
		if role.ID != "" {
			byID[role.ID] = role
		}
	}

	members, err := r.gw.GuildMembers(ctx, st.GuildID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list members, roles not revoked")
	}

	var pending []revocation
	for _, m := range members {
		if m.User == nil || m.User.ID == r.gw.BotUserID() {
			continue
		}
		for _, roleID := range m.Roles {
			if role, ok := byID[roleID]; ok {
				pending = append(pending, revocation{userID: m.User.ID, roleID: roleID, role: role.Name})
			}
		}
	}
	// A newer member listing supersedes what an earlier clear queued.
	r.pending = pending
	r.log.Info().Int("queued", len(pending)).Msg("board reactions cleared")

	// The bot's own reactions were cleared too.
	r.seedReactions(ctx, &discordgo.Message{ID: st.BoardMessageID, ChannelID: st.ChannelID})
}

// revokeDue fires when the next queued revocation may run. It is nil while
// the queue is empty.
func (r *Runner) revokeDue() <-chan time.Time {
	if len(r.pending) == 0 {
		return nil
	}
	if r.revokeTimer == nil {
		r.revokeTimer = time.NewTimer(r.revoke.Reserve().Delay())
	}
	return r.revokeTimer.C
}

// revokeNext performs the oldest queued revocation. It reports false once the
// queue is empty.
func (r *Runner) revokeNext(ctx context.Context) bool {
	r.revokeTimer = nil
	if len(r.pending) == 0 {
		return false
	}
	next := r.pending[0]
	r.pending = r.pending[1:]
	if err := r.gw.RevokeRole(ctx, r.state.GuildID, next.userID, next.roleID); err != nil {
		r.log.Warn().Err(err).Str("user", next.userID).Str("role", next.role).Msg("failed to revoke role")
	} else {
		r.log.Debug().Str("user", next.userID).Str("role", next.role).Msg("role revoked after clear")
	}
	if len(r.pending) == 0 {
		r.pending = nil
		r.log.Info().Msg("cleared roles revoked")
	}
	return true
}

// dropRevocation forgets a queued revocation the member reacted for again.
func (r *Runner) dropRevocation(userID, roleID string) {
	kept := r.pending[:0]
	for _, p := range r.pending {
		if p.userID != userID || p.roleID != roleID {
			kept = append(kept, p)
		}
	}
	r.pending = kept
}

// ownsReaction reports whether a reaction event concerns the board and was
// not made by the bot itself.
func (r *Runner) ownsReaction(messageID, userID string) bool {
	st := r.state
	if st.BoardMessageID == "" || messageID != st.BoardMessageID {
		return false
	}
	return userID != r.gw.BotUserID()
}
