package config

// DefaultChannelName - Channel the board is posted to for guilds seen for the first time
const DefaultChannelName string = "midgard-reporter"

// StartupMessage - Placeholder content of a freshly created or re-acquired board message
const StartupMessage string = "Bot is starting..."

// RoleListLine - Line emitted per role for the {rolelist} template line, takes the emote and the role text
const RoleListLine string = "Please react with :%s: to get notified about %s"

// FallbackEmote - Emote name used by {emote} when no role matches an occurrence
const FallbackEmote string = "calendar"

// DefaultLeadTime - Lead time in minutes for roles that do not set one
const DefaultLeadTime int = 15

// BoardHistoryLimit - How many channel messages are scanned for an existing board message
const BoardHistoryLimit int = 100

// PingWindowHours - How far ahead the ping lifecycle looks for covering occurrences
const PingWindowHours int = 24
