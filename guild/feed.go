package guild

import (
	"context"
	"errors"
	"time"

	"github.com/cufee/botto-calendar/calendar"
)

// feed is the cached calendar of one guild together with its refetch countdown.
type feed struct {
	text       []byte
	cal        *calendar.Calendar
	validators calendar.Validators
	fetchedAt  time.Time

	// nextIn counts ticks until the next download; due at zero.
	nextIn   int
	failures int
}

func (f *feed) due() bool {
	return f.nextIn <= 0
}

func (f *feed) scheduleNext(every int) {
	f.failures = 0
	f.nextIn = every - 1
}

// backoff spaces retries 1, 2, 4 ... ticks apart, never further than every.
func (f *feed) backoff(every int) {
	f.failures++
	wait := every
	if f.failures <= 16 && 1<<(f.failures-1) < every {
		wait = 1 << (f.failures - 1)
	}
	f.nextIn = wait - 1
}

// seedFeed installs a previously cached body without touching the countdown.
func (r *Runner) seedFeed(body []byte) {
	cal, skipped, err := calendar.Parse(body, r.opts.Location)
	if err != nil {
		r.log.Warn().Err(err).Msg("cached calendar unreadable")
		return
	}
	r.state.feed.text = body
	r.state.feed.cal = cal
	r.log.Info().Int("events", cal.Len()).Int("skipped", len(skipped)).Msg("calendar restored from disk cache")
}

// refreshFeed downloads the calendar when due. On failure the previous text
// stays in use and the next attempt is backed off.
func (r *Runner) refreshFeed(ctx context.Context) {
	f := &r.state.feed
	if !f.due() {
		f.nextIn--
		return
	}

	url := r.state.CalendarURL
	res, err := r.fetcher.Fetch(ctx, url, f.validators)
	switch {
	case errors.Is(err, calendar.ErrNoURL):
		r.log.Debug().Msg("no calendar url configured")
		f.scheduleNext(r.opts.RefetchEvery)
		return
	case err != nil:
		f.backoff(r.opts.RefetchEvery)
		r.log.Warn().Err(err).Int("failures", f.failures).Int("retry_in_ticks", f.nextIn+1).Msg("calendar fetch failed, keeping cached copy")
		return
	case res.NotModified:
		f.scheduleNext(r.opts.RefetchEvery)
		f.fetchedAt = r.opts.Now()
		r.log.Debug().Str("url", calendar.RedactURL(url)).Msg("calendar not modified")
		return
	}

	cal, skipped, err := calendar.Parse(res.Body, r.opts.Location)
	if err != nil {
		f.backoff(r.opts.RefetchEvery)
		r.log.Warn().Err(err).Str("url", calendar.RedactURL(url)).Msg("calendar unreadable, keeping cached copy")
		return
	}
	for _, e := range skipped {
		r.log.Debug().Err(e).Msg("calendar event skipped")
	}

	f.text = res.Body
	f.cal = cal
	f.validators = res.Validators
	f.fetchedAt = r.opts.Now()
	f.scheduleNext(r.opts.RefetchEvery)
	r.log.Info().Str("url", calendar.RedactURL(url)).Int("events", cal.Len()).Msg("calendar updated")
}
