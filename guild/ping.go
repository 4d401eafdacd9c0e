package guild

import (
	"context"
	"errors"
	"time"

	"github.com/cufee/botto-calendar/calendar"
	"github.com/cufee/botto-calendar/config"
	"github.com/cufee/botto-calendar/gateway"
)

// updatePings moves idle roles with a covering occurrence to pinging, then
// ends pings whose occurrence is over.
func (r *Runner) updatePings(ctx context.Context, now time.Time) {
	st := r.state
	if st.ChannelID == "" || st.feed.cal == nil {
		return
	}
	upcoming := st.feed.cal.Between(now, now.Add(time.Duration(config.PingWindowHours)*time.Hour))

	for _, role := range st.Roles {
		if role.Pinging() || role.ID == "" {
			continue
		}
		o, ok := r.coveringOccurrence(role, upcoming, now)
		if !ok {
			continue
		}
		msg, err := r.gw.SendMessage(ctx, st.ChannelID, role.pingText(o))
		if err != nil {
			r.log.Warn().Err(err).Str("role", role.Name).Msg("failed to send ping")
			continue
		}
		role.startPing(msg.ID, o)
		r.log.Info().Str("role", role.Name).Str("event", o.Summary).Time("start", o.Start).Msg("ping sent")
	}

	for _, role := range st.Roles {
		if !role.Pinging() || r.covers(role, *role.Pinged, now) {
			continue
		}
		err := r.gw.DeleteMessage(ctx, st.ChannelID, role.PingMessageID)
		if err != nil && !errors.Is(err, gateway.ErrNotFound) {
			r.log.Warn().Err(err).Str("role", role.Name).Msg("failed to delete ping, retrying next tick")
			continue
		}
		r.log.Info().Str("role", role.Name).Str("event", role.Pinged.Summary).Msg("ping ended")
		role.endPing()
	}
}

func (r *Runner) coveringOccurrence(role *RoleRuntime, occs []calendar.Occurrence, now time.Time) (calendar.Occurrence, bool) {
	for _, o := range occs {
		if o.HasTime() && role.MatchesOccurrence(o) && r.covers(role, o, now) {
			return o, true
		}
	}
	return calendar.Occurrence{}, false
}

func (r *Runner) covers(role *RoleRuntime, o calendar.Occurrence, now time.Time) bool {
	if r.opts.HonorLeadTime {
		return o.CoversWithLead(now, role.LeadTime)
	}
	return o.Covers(now)
}
