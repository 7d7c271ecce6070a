package reactmon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/guildmod/warden/internal/ticker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("reactmon")

// Run calls Tick every interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	m.logger.Info("starting reaction monitor", "interval", interval)
	return ticker.Periodically(ctx, m.clock, interval, func(ctx context.Context) error {
		m.Tick(ctx)
		return nil
	})
}

// Tick processes every guild once. If another Tick is still running, this one is skipped and
// returns false.
func (m *Monitor) Tick(ctx context.Context) bool {
	ran, _ := m.tick.Do(ctx, func(ctx context.Context) error {
		m.tickOnce(ctx)
		return nil
	})
	if !ran {
		ticksSkipped.Inc()
		m.logger.Warn("skipping monitor tick, previous tick still running")
	}
	return ran
}

type guildEntry struct {
	id    string
	state *GuildWatchState
}

func (m *Monitor) tickOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
	}()

	// snapshot the registry; guilds joining or leaving during the tick are picked up next time
	var guilds []guildEntry
	m.guilds.Range(func(id string, st *GuildWatchState) bool {
		guilds = append(guilds, guildEntry{id: id, state: st})
		return true
	})
	sort.Slice(guilds, func(i, j int) bool { return guilds[i].id < guilds[j].id })

	ctx, span := tracer.Start(ctx, "Tick")
	defer span.End()
	span.SetAttributes(attribute.Int("guilds", len(guilds)))

	now := m.clock.Now()
	for _, g := range guilds {
		if ctx.Err() != nil {
			return
		}
		if err := m.processGuild(ctx, g.id, g.state, now); err != nil {
			unexpectedErrors.WithLabelValues("guild").Inc()
			m.errors.ReportUnexpectedError(ctx, "tick guild "+g.id, err)
		}
	}
}

func (m *Monitor) processGuild(ctx context.Context, guildID string, st *GuildWatchState, now time.Time) (err error) {
	// similar to an HTTP server, we want to recover any panics from guild processing
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing guild: %v", r)
		}
	}()

	// inactive guilds still drain what was buffered before watching stopped, and still unmute
	if st.idle() {
		return nil
	}
	logger := m.logger.With("guild", guildID)
	batch := st.prepareTick(now)

	for _, userID := range batch.unmutes {
		m.isolate(ctx, logger, "unmute", func() error {
			return m.unmute(ctx, logger, guildID, userID, batch.cfg)
		})
	}

	for _, te := range batch.events {
		te := te
		m.isolate(ctx, logger, "dispatch "+te.Event.Type.String(), func() error {
			switch te.Event.Type {
			case ReactionAdd:
				return m.processAdd(ctx, logger, st, te.At, te.Event)
			case ReactionRemove:
				return m.processRemove(ctx, logger, st, te.At, te.Event)
			default:
				return fmt.Errorf("unhandled event type: %s", te.Event.Type)
			}
		})
	}

	st.finishTick(m.clock.Now())
	return nil
}

// isolate runs one unit of tick work. Transient platform errors are logged and swallowed; anything
// else (including panics) goes to the error reporter. Either way the tick continues.
func (m *Monitor) isolate(ctx context.Context, logger *slog.Logger, where string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	if IsTransient(err) {
		logger.Debug("skipping action after platform error", "where", where, "err", err)
		return
	}
	logger.Warn("reaction monitor action failed", "where", where, "err", err)
	unexpectedErrors.WithLabelValues(where).Inc()
	m.errors.ReportUnexpectedError(ctx, where, err)
}

func (m *Monitor) unmute(ctx context.Context, logger *slog.Logger, guildID, userID string, cfg WatchConfig) error {
	if cfg.MuteRoleID == "" {
		logger.Info("mute expired, no mute role configured", "user", userID)
		return nil
	}
	if err := m.platform.RemoveRoleFromMember(ctx, guildID, userID, cfg.MuteRoleID); err != nil {
		return fmt.Errorf("removing mute role from %s: %w", userID, err)
	}
	logger.Info("mute expired", "user", userID, "role", cfg.MuteRoleID)
	watchedEmojiActions.WithLabelValues("unmute").Inc()
	return nil
}
