package reactmon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guildmod/warden/reactmon/countstore"
	"github.com/guildmod/warden/reactmon/flagstore"
)

func (m *Monitor) processAdd(ctx context.Context, logger *slog.Logger, st *GuildWatchState, at time.Time, evt Event) error {
	cfg := st.config()
	policy, ok := cfg.Watchlist[evt.Emoji.Key()]
	if !ok || !policy.Any() {
		return nil
	}

	msg, err := m.platform.FetchMessage(ctx, evt.ChannelID, evt.MessageID)
	if errors.Is(err, ErrMessageNotFound) {
		logger.Debug("watched emoji on deleted message", "channel", evt.ChannelID, "message", evt.MessageID)
		return nil
	} else if err != nil {
		return fmt.Errorf("fetching message %s: %w", evt.MessageID, err)
	}

	actor := evt.ActorID()
	var actions []string
	if policy.Log {
		actions = append(actions, "logged")
	}
	if policy.Remove || policy.Mute {
		if err := m.platform.ClearReaction(ctx, msg, evt.Emoji); err != nil {
			return fmt.Errorf("clearing %s reaction: %w", evt.Emoji, err)
		}
		watchedEmojiActions.WithLabelValues("remove").Inc()
		actions = append(actions, "reaction removed")

		if cfg.MuteRoleID == "" {
			logger.Info("no mute role configured, not muting", "user", actor)
			actions = append(actions, "no mute role configured")
		} else {
			if err := m.platform.AddRoleToMember(ctx, evt.GuildID, actor, cfg.MuteRoleID); err != nil {
				return fmt.Errorf("applying mute role to %s: %w", actor, err)
			}
			watchedEmojiActions.WithLabelValues("mute").Inc()
			if policy.Mute {
				st.recordMute(actor, at)
				actions = append(actions, fmt.Sprintf("muted for %s", cfg.MuteDuration))
			} else {
				actions = append(actions, "mute role applied")
			}
		}
	}
	if policy.Log {
		watchedEmojiActions.WithLabelValues("log").Inc()
	}

	today := m.recordIncident(ctx, logger, IncidentWatchedEmoji, evt.GuildID, actor)
	logger.Info("watched emoji used", "user", actor, "emoji", evt.Emoji.Key(), "channel", evt.ChannelID, "message", evt.MessageID, "policy", policy.String())

	text := fmt.Sprintf("Watched emoji %s used by <@%s> in <#%s>: %s\nActions: %s%s",
		evt.Emoji, actor, evt.ChannelID, MessageLink(evt.GuildID, msg.ChannelID, msg.ID),
		strings.Join(actions, ", "), repeatSuffix(today))
	return m.sendLog(ctx, evt.GuildID, text)
}

func (m *Monitor) processRemove(ctx context.Context, logger *slog.Logger, st *GuildWatchState, at time.Time, evt Event) error {
	// eligibility can change between ingestion and processing (eg, member promoted, watch disabled)
	if reason := m.ineligible(st, evt); reason != "" {
		logger.Debug("remove event no longer eligible", "reason", reason, "user", evt.ActorID())
		return nil
	}

	add, ok := st.findQuickAdd(at, evt)
	if !ok {
		return nil
	}
	quickRemovesDetected.Inc()
	actor := evt.ActorID()
	age := at.Sub(add.At)

	link := ""
	msg, err := m.platform.FetchMessage(ctx, evt.ChannelID, evt.MessageID)
	if err == nil {
		link = ": " + MessageLink(evt.GuildID, msg.ChannelID, msg.ID)
	} else if !IsTransient(err) {
		logger.Warn("failed to fetch message for quick remove log", "message", evt.MessageID, "err", err)
	}

	today := m.recordIncident(ctx, logger, IncidentQuickRemove, evt.GuildID, actor)
	logger.Info("quick reaction remove", "user", actor, "emoji", evt.Emoji.Key(), "channel", evt.ChannelID, "message", evt.MessageID, "age", age)

	text := fmt.Sprintf("Quick remove: <@%s> removed %s from a message in <#%s> %s after adding it%s%s",
		actor, evt.Emoji, evt.ChannelID, age.Round(time.Millisecond), link, repeatSuffix(today))
	return m.sendLog(ctx, evt.GuildID, text)
}

// recordIncident bumps counters and flags for the member and returns today's count (zero if
// counters are not configured). Failures only degrade the log message.
func (m *Monitor) recordIncident(ctx context.Context, logger *slog.Logger, incident, guildID, userID string) int {
	key := flagstore.MemberKey(guildID, userID)
	if m.flags != nil {
		if err := m.flags.Add(ctx, key, []string{incident}); err != nil {
			logger.Warn("failed to flag member", "user", userID, "flag", incident, "err", err)
		}
	}
	if m.counters == nil {
		return 0
	}
	if err := m.counters.Increment(ctx, incident, key); err != nil {
		logger.Warn("failed to increment counter", "counter", incident, "err", err)
		return 0
	}
	n, err := m.counters.GetCount(ctx, incident, key, countstore.PeriodDay)
	if err != nil {
		logger.Warn("failed to read counter", "counter", incident, "err", err)
		return 0
	}
	return n
}

func repeatSuffix(today int) string {
	if today <= 1 {
		return ""
	}
	return fmt.Sprintf(" (%d times today)", today)
}

func (m *Monitor) sendLog(ctx context.Context, guildID, text string) error {
	if m.logSink == nil {
		return nil
	}
	if err := m.logSink.SendLogMessage(ctx, guildID, text); err != nil {
		return fmt.Errorf("sending mod log: %w", err)
	}
	return nil
}
