package database

// BotIdentity - DB record for one bot account, one gateway session each
type BotIdentity struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Token string `json:"token" yaml:"token"`
}

// GuildConfig - DB record for guild settings
type GuildConfig struct {
	ID          uint64       `json:"id" yaml:"id"`
	BotID       string       `json:"bot_id" yaml:"bot_id"`
	Name        string       `json:"name" yaml:"name"`
	ChannelName string       `json:"channel_name" yaml:"channel_name"`
	CalendarURL string       `json:"calendar_url" yaml:"calendar_url"`
	Template    string       `json:"template" yaml:"template"`
	Roles       []RoleConfig `json:"roles" yaml:"roles"`
}

// RoleConfig - Notification role record, child of GuildConfig
type RoleConfig struct {
	// Name must match an existing or creatable guild role
	Name string `json:"name" yaml:"name"`
	// DiscordText is appended to the {rolelist} line of this role
	DiscordText string `json:"discord_text" yaml:"discord_text"`
	// Template is sent after the role mention when pinging, {name} is the event summary
	Template string `json:"template" yaml:"template"`
	Emote    string `json:"emote" yaml:"emote"`
	// Filter is "nolocation" or "location=<substr>"
	Filter string `json:"filter" yaml:"filter"`
	// LeadTime in minutes
	LeadTime int `json:"lead_time" yaml:"lead_time"`
}
