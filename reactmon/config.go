package reactmon

import (
	"maps"
	"time"
)

var (
	DefaultMinReactLifespan = 1 * time.Second
	DefaultMuteDuration     = 10 * time.Minute

	// upper bounds accepted by the config API
	MaxMinReactLifespan = 1 * time.Hour
	MaxMuteDuration     = 28 * 24 * time.Hour
)

// WatchConfig is the persisted part of a guild's watch state.
type WatchConfig struct {
	GuildID  string
	Watching bool
	// add to remove intervals at or below this are flagged as quick removes
	MinReactLifespan time.Duration
	MuteDuration     time.Duration
	// role applied for the remove and mute policies; empty disables role changes
	MuteRoleID string
	// keyed by Emoji.Key()
	Watchlist map[string]EmojiPolicy
}

func DefaultWatchConfig(guildID string) WatchConfig {
	return WatchConfig{
		GuildID:          guildID,
		MinReactLifespan: DefaultMinReactLifespan,
		MuteDuration:     DefaultMuteDuration,
		Watchlist:        map[string]EmojiPolicy{},
	}
}

// Clone returns a copy which shares no maps with the receiver.
func (c WatchConfig) Clone() WatchConfig {
	out := c
	out.Watchlist = maps.Clone(c.Watchlist)
	if out.Watchlist == nil {
		out.Watchlist = map[string]EmojiPolicy{}
	}
	return out
}

// fills zero durations with defaults, so partially persisted rows behave sanely
func (c *WatchConfig) applyDefaults() {
	if c.MinReactLifespan <= 0 {
		c.MinReactLifespan = DefaultMinReactLifespan
	}
	if c.MuteDuration <= 0 {
		c.MuteDuration = DefaultMuteDuration
	}
	if c.Watchlist == nil {
		c.Watchlist = map[string]EmojiPolicy{}
	}
}
