package reactmon

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// GuildWatchState is the in-memory watch state of one guild. It is created by Monitor.JoinGuild
// and discarded by Monitor.LeaveGuild.
type GuildWatchState struct {
	// serializes config changes, which persist before they are applied; held across store I/O
	cfgMu sync.Mutex

	mu  sync.Mutex
	cfg WatchConfig
	// not yet processed, in arrival order
	recentEvents []TimedEvent
	// adds still young enough to match a quick remove, oldest first
	recentAdds []TimedEvent
	// user ID to mute start
	activeMutes map[string]time.Time
}

func newGuildWatchState(cfg WatchConfig) *GuildWatchState {
	cfg = cfg.Clone()
	cfg.applyDefaults()
	return &GuildWatchState{
		cfg:         cfg,
		activeMutes: make(map[string]time.Time),
	}
}

// StateSnapshot is a point in time copy of a GuildWatchState.
type StateSnapshot struct {
	Config       WatchConfig
	RecentEvents []TimedEvent
	RecentAdds   []TimedEvent
	ActiveMutes  map[string]time.Time
}

func (s *GuildWatchState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		Config:       s.cfg.Clone(),
		RecentEvents: append([]TimedEvent(nil), s.recentEvents...),
		RecentAdds:   append([]TimedEvent(nil), s.recentAdds...),
		ActiveMutes:  maps.Clone(s.activeMutes),
	}
}

func (s *GuildWatchState) config() WatchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

func (s *GuildWatchState) watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Watching
}

// appends the event unless the guild stopped watching since the caller last checked. The
// timestamp is read under the lock so the buffer stays in clock order across concurrent callers.
func (s *GuildWatchState) buffer(clk clockwork.Clock, evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Watching {
		return false
	}
	s.recentEvents = append(s.recentEvents, TimedEvent{At: clk.Now(), Event: evt})
	return true
}

// tickBatch is everything one tick needs from a guild, taken in a single critical section.
type tickBatch struct {
	cfg     WatchConfig
	events  []TimedEvent
	unmutes []string
}

func (s *GuildWatchState) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cfg.Watching && len(s.recentEvents) == 0 && len(s.activeMutes) == 0
}

// prepareTick runs the mute expiry sweep and add window maintenance, then detaches the event
// buffer for dispatch.
func (s *GuildWatchState) prepareTick(now time.Time) tickBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := tickBatch{cfg: s.cfg.Clone()}

	for userID, start := range s.activeMutes {
		if start.Add(s.cfg.MuteDuration).Before(now) {
			b.unmutes = append(b.unmutes, userID)
			delete(s.activeMutes, userID)
		}
	}
	sort.Strings(b.unmutes)

	// removes waiting in the buffer may still need adds older than now-lifespan; keep those around
	// until dispatch is done and finishTick purges them
	horizon := now
	for _, te := range s.recentEvents {
		if te.Event.Type == ReactionAdd {
			s.recentAdds = append(s.recentAdds, te)
		} else if te.Event.Type == ReactionRemove && te.At.Before(horizon) {
			horizon = te.At
		}
	}
	keepFrom := horizon.Add(-s.cfg.MinReactLifespan)
	s.purgeAdds(func(at time.Time) bool { return at.Before(keepFrom) })

	b.events = s.recentEvents
	s.recentEvents = nil
	return b
}

func (s *GuildWatchState) finishTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.cfg.MinReactLifespan)
	s.purgeAdds(func(at time.Time) bool { return !at.After(cutoff) })
}

// drops the leading adds for which expired returns true. recentAdds is appended in buffer order,
// which is clock order, so the expired adds form a prefix.
func (s *GuildWatchState) purgeAdds(expired func(at time.Time) bool) {
	i := 0
	for i < len(s.recentAdds) && expired(s.recentAdds[i].At) {
		i++
	}
	if i == 0 {
		return
	}
	s.recentAdds = append(s.recentAdds[:0:0], s.recentAdds[i:]...)
}

// findQuickAdd returns the oldest buffered add of the same message by the same actor whose age
// relative to at lies in (0, lifespan].
func (s *GuildWatchState) findQuickAdd(at time.Time, evt Event) (TimedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lifespan := s.cfg.MinReactLifespan
	actor := evt.ActorID()
	for _, add := range s.recentAdds {
		if add.Event.MessageID != evt.MessageID || add.Event.ActorID() != actor {
			continue
		}
		age := at.Sub(add.At)
		if age > 0 && age <= lifespan {
			return add, true
		}
	}
	return TimedEvent{}, false
}

func (s *GuildWatchState) recordMute(userID string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeMutes[userID] = start
}
