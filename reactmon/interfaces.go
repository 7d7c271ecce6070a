package reactmon

import (
	"context"
	"errors"
)

var (
	ErrUnknownGuild    = errors.New("guild not monitored")
	ErrConfigNotFound  = errors.New("no stored watch config")
	ErrMessageNotFound = errors.New("message not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrForbidden       = errors.New("missing permissions")
	ErrRateLimited     = errors.New("rate limited")
)

// IsTransient reports whether a platform error means "skip this event's action" rather than
// something worth reporting: the target message or member is gone, the bot lacks permissions, or
// it is being rate limited.
func IsTransient(err error) bool {
	return errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRateLimited)
}

// Platform performs chat platform actions. Implementations should wrap (or make errors.Is match)
// ErrMessageNotFound, ErrMemberNotFound, ErrForbidden and ErrRateLimited where applicable.
type Platform interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	// removes every reaction using the emoji from the message
	ClearReaction(ctx context.Context, msg *Message, emoji Emoji) error
	AddRoleToMember(ctx context.Context, guildID, userID, roleID string) error
	RemoveRoleFromMember(ctx context.Context, guildID, userID, roleID string) error
}

// Authority answers permission questions during event ingestion. Every method is called
// synchronously from the event delivery path and must not block on I/O.
type Authority interface {
	BotUserID() string
	IsModerator(guildID string, m *Member) bool
	IsAdminRole(guildID string, m *Member) bool
	IsBotAdmin(userID string) bool
	IgnoredChannels(guildID string) map[string]bool
}

// LogSink delivers mod-log text for a guild. It is a no-op when the guild has no log destination.
type LogSink interface {
	SendLogMessage(ctx context.Context, guildID, text string) error
}

// ErrorReporter is a best-effort sink for unexpected errors. It must not panic.
type ErrorReporter interface {
	ReportUnexpectedError(ctx context.Context, where string, err error)
}

// ConfigStore persists WatchConfig per guild. Load returns ErrConfigNotFound (possibly wrapped)
// when nothing is stored for the guild.
type ConfigStore interface {
	LoadGuildWatchConfig(ctx context.Context, guildID string) (*WatchConfig, error)
	SaveGuildWatchConfig(ctx context.Context, cfg *WatchConfig) error
	DeleteGuildWatchConfig(ctx context.Context, guildID string) error
	ListGuildWatchConfigs(ctx context.Context) ([]WatchConfig, error)
}
