package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guildmod/warden/discord"
)

// Discord rejects longer message content.
const maxMessageLength = 2000

type LogChannelSource interface {
	// empty if the guild has no log channel
	LogChannel(guildID string) string
}

type MessageSender interface {
	CreateMessage(ctx context.Context, channelID, content string) (*discord.Message, error)
}

// ModLog sends mod-log text to each guild's log channel. Messages over the throttle are dropped
// and counted.
type ModLog struct {
	Channels LogChannelSource
	Sender   MessageSender
	Throttle *Throttle
	// optional
	Slack  *SlackNotifier
	Logger *slog.Logger
}

func (ml *ModLog) logger() *slog.Logger {
	if ml.Logger != nil {
		return ml.Logger
	}
	return slog.Default()
}

func (ml *ModLog) SendLogMessage(ctx context.Context, guildID, text string) error {
	logger := ml.logger().With("guild", guildID)

	if !ml.Throttle.Allow(guildID) {
		modLogMessages.WithLabelValues("throttled").Inc()
		logger.Warn("mod log throttled, dropping message")
		return nil
	}

	if ml.Slack != nil {
		if err := ml.Slack.SendGuildText(ctx, guildID, text); err != nil {
			logger.Warn("failed to mirror mod log to slack", "err", err)
		}
	}

	channelID := ""
	if ml.Channels != nil {
		channelID = ml.Channels.LogChannel(guildID)
	}
	if channelID == "" {
		modLogMessages.WithLabelValues("no-channel").Inc()
		logger.Debug("no log channel configured", "text", text)
		return nil
	}

	if _, err := ml.Sender.CreateMessage(ctx, channelID, truncate(text, maxMessageLength)); err != nil {
		modLogMessages.WithLabelValues("error").Inc()
		return fmt.Errorf("posting to log channel %s: %w", channelID, err)
	}
	modLogMessages.WithLabelValues("sent").Inc()
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
