package reactmon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/guildmod/warden/internal/ticker"
	"github.com/guildmod/warden/reactmon/countstore"
	"github.com/guildmod/warden/reactmon/flagstore"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
)

var ErrInvalidConfig = errors.New("invalid watch config")

// Drop reasons of the eligibility filter. Also used as metric label values.
const (
	DropUnknownGuild   = "unknown-guild"
	DropInactive       = "inactive"
	DropSelf           = "self"
	DropModerator      = "moderator"
	DropAdminRole      = "admin-role"
	DropBotAdmin       = "bot-admin"
	DropIgnoredChannel = "ignored-channel"
)

// Counter and flag names recorded against "<guild>/<user>".
const (
	IncidentQuickRemove  = "quick-remove"
	IncidentWatchedEmoji = "watched-emoji"
)

type MonitorConfig struct {
	Logger *slog.Logger
	// defaults to the real clock
	Clock     clockwork.Clock
	Platform  Platform
	Authority Authority
	// optional; without a sink detections are only logged locally
	Log LogSink
	// optional; defaults to logging at ERROR
	Errors ErrorReporter
	// optional; without a store config changes only live in memory
	Store ConfigStore
	// optional incident counters and member flags
	Counters countstore.CountStore
	Flags    flagstore.FlagStore
}

// Monitor is the reaction correlation engine. RecordEvent may be called from any goroutine; Tick
// (or Run) does the processing.
type Monitor struct {
	logger    *slog.Logger
	clock     clockwork.Clock
	platform  Platform
	authority Authority
	logSink   LogSink
	errors    ErrorReporter
	store     ConfigStore
	counters  countstore.CountStore
	flags     flagstore.FlagStore

	guilds *xsync.MapOf[string, *GuildWatchState]
	tick   ticker.Exclusive
}

func NewMonitor(config MonitorConfig) (*Monitor, error) {
	if config.Platform == nil {
		return nil, fmt.Errorf("reactmon: Platform is required")
	}
	if config.Authority == nil {
		return nil, fmt.Errorf("reactmon: Authority is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	reporter := config.Errors
	if reporter == nil {
		reporter = &LogErrorReporter{Logger: logger}
	}
	return &Monitor{
		logger:    logger.With("component", "reactmon"),
		clock:     clk,
		platform:  config.Platform,
		authority: config.Authority,
		logSink:   config.Log,
		errors:    reporter,
		store:     config.Store,
		counters:  config.Counters,
		flags:     config.Flags,
		guilds:    xsync.NewMapOf[string, *GuildWatchState](),
	}, nil
}

// LogErrorReporter reports unexpected errors to a structured logger.
type LogErrorReporter struct {
	Logger *slog.Logger
}

func (r *LogErrorReporter) ReportUnexpectedError(ctx context.Context, where string, err error) {
	r.Logger.Error("unexpected error", "where", where, "err", err)
}

// Startup creates watch state for every guild with persisted configuration.
func (m *Monitor) Startup(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	cfgs, err := m.store.ListGuildWatchConfigs(ctx)
	if err != nil {
		return fmt.Errorf("listing watch configs: %w", err)
	}
	for _, cfg := range cfgs {
		if _, loaded := m.guilds.LoadOrStore(cfg.GuildID, newGuildWatchState(cfg)); !loaded {
			m.logger.Info("restored guild watch state", "guild", cfg.GuildID, "watching", cfg.Watching, "emoji", len(cfg.Watchlist))
		}
	}
	guildsMonitored.Set(float64(m.guilds.Size()))
	return nil
}

// JoinGuild creates the guild's watch state from persisted configuration, or defaults if there is
// none. Joining a guild which already has state is a no-op.
func (m *Monitor) JoinGuild(ctx context.Context, guildID string) error {
	if _, ok := m.guilds.Load(guildID); ok {
		return nil
	}
	cfg := DefaultWatchConfig(guildID)
	if m.store != nil {
		stored, err := m.store.LoadGuildWatchConfig(ctx, guildID)
		switch {
		case errors.Is(err, ErrConfigNotFound):
		case err != nil:
			return fmt.Errorf("loading watch config for guild %s: %w", guildID, err)
		default:
			cfg = *stored
			cfg.GuildID = guildID
		}
	}
	if _, loaded := m.guilds.LoadOrStore(guildID, newGuildWatchState(cfg)); !loaded {
		m.logger.Info("joined guild", "guild", guildID, "watching", cfg.Watching)
		guildsMonitored.Set(float64(m.guilds.Size()))
	}
	return nil
}

// LeaveGuild discards the guild's watch state, including anything buffered, and deletes its
// persisted configuration.
func (m *Monitor) LeaveGuild(ctx context.Context, guildID string) error {
	_, existed := m.guilds.LoadAndDelete(guildID)
	guildsMonitored.Set(float64(m.guilds.Size()))
	if existed {
		m.logger.Info("left guild", "guild", guildID)
	}
	if m.store != nil {
		if err := m.store.DeleteGuildWatchConfig(ctx, guildID); err != nil {
			return fmt.Errorf("deleting watch config for guild %s: %w", guildID, err)
		}
	}
	return nil
}

// Guilds returns the IDs of all guilds with watch state, sorted.
func (m *Monitor) Guilds() []string {
	out := make([]string, 0, m.guilds.Size())
	m.guilds.Range(func(id string, _ *GuildWatchState) bool {
		out = append(out, id)
		return true
	})
	sort.Strings(out)
	return out
}

func (m *Monitor) state(guildID string) (*GuildWatchState, error) {
	st, ok := m.guilds.Load(guildID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGuild, guildID)
	}
	return st, nil
}

func (m *Monitor) Snapshot(guildID string) (StateSnapshot, error) {
	st, err := m.state(guildID)
	if err != nil {
		return StateSnapshot{}, err
	}
	return st.Snapshot(), nil
}

// RecordEvent buffers a reaction event for the next tick if it passes the eligibility filter. It
// never blocks on I/O. Returns whether the event was buffered.
func (m *Monitor) RecordEvent(evt Event) bool {
	st, ok := m.guilds.Load(evt.GuildID)
	if !ok {
		eventsDropped.WithLabelValues(DropUnknownGuild).Inc()
		return false
	}
	if reason := m.ineligible(st, evt); reason != "" {
		eventsDropped.WithLabelValues(reason).Inc()
		return false
	}
	if !st.buffer(m.clock, evt) {
		eventsDropped.WithLabelValues(DropInactive).Inc()
		return false
	}
	eventsIngested.WithLabelValues(evt.Type.String()).Inc()
	return true
}

// ineligible returns the reason an event must be dropped, or an empty string.
func (m *Monitor) ineligible(st *GuildWatchState, evt Event) string {
	if !st.watching() {
		return DropInactive
	}
	actor := evt.ActorID()
	if actor != "" && actor == m.authority.BotUserID() {
		return DropSelf
	}
	member := evt.Member
	if member == nil {
		member = &Member{UserID: evt.UserID}
	}
	if m.authority.IsModerator(evt.GuildID, member) {
		return DropModerator
	}
	if m.authority.IsAdminRole(evt.GuildID, member) {
		return DropAdminRole
	}
	if m.authority.IsBotAdmin(actor) {
		return DropBotAdmin
	}
	if m.authority.IgnoredChannels(evt.GuildID)[evt.ChannelID] {
		return DropIgnoredChannel
	}
	return ""
}

// Config returns a copy of the guild's current watch configuration.
func (m *Monitor) Config(guildID string) (WatchConfig, error) {
	st, err := m.state(guildID)
	if err != nil {
		return WatchConfig{}, err
	}
	return st.config(), nil
}

// updateConfig applies fn to a copy of the guild's config, persists it, and only then swaps it into
// memory. A failed save leaves the in-memory config untouched.
func (m *Monitor) updateConfig(ctx context.Context, guildID string, fn func(cfg *WatchConfig) error) (WatchConfig, error) {
	st, err := m.state(guildID)
	if err != nil {
		return WatchConfig{}, err
	}
	st.cfgMu.Lock()
	defer st.cfgMu.Unlock()

	next := st.config()
	if err := fn(&next); err != nil {
		return WatchConfig{}, err
	}
	if m.store != nil {
		if err := m.store.SaveGuildWatchConfig(ctx, &next); err != nil {
			return WatchConfig{}, fmt.Errorf("saving watch config for guild %s: %w", guildID, err)
		}
	}
	st.mu.Lock()
	st.cfg = next.Clone()
	st.mu.Unlock()
	return next, nil
}

// SetWatching switches quick-remove detection on or off. Switching off takes effect for the very
// next RecordEvent call; events already buffered are still processed.
func (m *Monitor) SetWatching(ctx context.Context, guildID string, watching bool) (WatchConfig, error) {
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		cfg.Watching = watching
		return nil
	})
}

func (m *Monitor) WatchEmoji(ctx context.Context, guildID string, emoji Emoji, policy EmojiPolicy) (WatchConfig, error) {
	key := emoji.Key()
	if key == "" {
		return WatchConfig{}, fmt.Errorf("%w: empty emoji", ErrInvalidConfig)
	}
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		cfg.Watchlist[key] = policy
		return nil
	})
}

// UnwatchEmoji removes the emoji from the watchlist. Unwatching an emoji which is not watched is
// not an error.
func (m *Monitor) UnwatchEmoji(ctx context.Context, guildID string, emoji Emoji) (WatchConfig, error) {
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		delete(cfg.Watchlist, emoji.Key())
		return nil
	})
}

func validLifespan(d time.Duration) error {
	if d <= 0 || d > MaxMinReactLifespan {
		return fmt.Errorf("%w: min react lifespan must be positive and at most %s", ErrInvalidConfig, MaxMinReactLifespan)
	}
	return nil
}

func validMuteDuration(d time.Duration) error {
	if d <= 0 || d > MaxMuteDuration {
		return fmt.Errorf("%w: mute duration must be positive and at most %s", ErrInvalidConfig, MaxMuteDuration)
	}
	return nil
}

func (m *Monitor) SetMinReactLifespan(ctx context.Context, guildID string, d time.Duration) (WatchConfig, error) {
	if err := validLifespan(d); err != nil {
		return WatchConfig{}, err
	}
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		cfg.MinReactLifespan = d
		return nil
	})
}

func (m *Monitor) SetMuteDuration(ctx context.Context, guildID string, d time.Duration) (WatchConfig, error) {
	if err := validMuteDuration(d); err != nil {
		return WatchConfig{}, err
	}
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		cfg.MuteDuration = d
		return nil
	})
}

// SetMuteRole sets the role applied by the remove and mute policies. An empty role ID disables role
// changes.
func (m *Monitor) SetMuteRole(ctx context.Context, guildID, roleID string) (WatchConfig, error) {
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		cfg.MuteRoleID = roleID
		return nil
	})
}

// WatchUpdate is a partial config change. Nil fields are left as they are.
type WatchUpdate struct {
	Watching         *bool
	MinReactLifespan *time.Duration
	MuteDuration     *time.Duration
	MuteRoleID       *string
}

// UpdateWatch validates every field, then applies them together with a single save. Either all
// fields change or none do.
func (m *Monitor) UpdateWatch(ctx context.Context, guildID string, u WatchUpdate) (WatchConfig, error) {
	if u.MinReactLifespan != nil {
		if err := validLifespan(*u.MinReactLifespan); err != nil {
			return WatchConfig{}, err
		}
	}
	if u.MuteDuration != nil {
		if err := validMuteDuration(*u.MuteDuration); err != nil {
			return WatchConfig{}, err
		}
	}
	return m.updateConfig(ctx, guildID, func(cfg *WatchConfig) error {
		if u.Watching != nil {
			cfg.Watching = *u.Watching
		}
		if u.MinReactLifespan != nil {
			cfg.MinReactLifespan = *u.MinReactLifespan
		}
		if u.MuteDuration != nil {
			cfg.MuteDuration = *u.MuteDuration
		}
		if u.MuteRoleID != nil {
			cfg.MuteRoleID = *u.MuteRoleID
		}
		return nil
	})
}
