package guild

import "time"

// Event is something a runner handles between ticks.
type Event interface {
	kind() string
}

// ReactionAdded is a user reacting to a message in the guild.
type ReactionAdded struct {
	MessageID string
	UserID    string
	// EmojiName is the bare name or unicode character.
	EmojiName string
	// EmojiAPIName is "name:id" for custom emotes, the character otherwise.
	EmojiAPIName string
}

// ReactionRemoved is a user withdrawing a reaction.
type ReactionRemoved struct {
	MessageID    string
	UserID       string
	EmojiName    string
	EmojiAPIName string
}

// ReactionsCleared is every reaction being removed from a message at once.
type ReactionsCleared struct {
	MessageID string
}

// Refresh forces a calendar download and a tick.
type Refresh struct{}

// StatusRequest asks the runner for a Status snapshot. Reply must be buffered.
type StatusRequest struct {
	Reply chan<- Status
}

func (ReactionAdded) kind() string    { return "reaction_added" }
func (ReactionRemoved) kind() string  { return "reaction_removed" }
func (ReactionsCleared) kind() string { return "reactions_cleared" }
func (Refresh) kind() string          { return "refresh" }
func (StatusRequest) kind() string    { return "status" }

// Status is a point in time view of a runner.
type Status struct {
	GuildID        string
	ChannelID      string
	BoardMessageID string

	Ticks    uint64
	LastTick time.Time

	HasCalendarURL bool
	FetchedAt      time.Time
	FetchFailures  int
	Events         int

	// Pinging lists the roles with an outstanding ping message.
	Pinging []string
	// PendingRevokes counts role removals still queued by a reaction clear.
	PendingRevokes int
}
