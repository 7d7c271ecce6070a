package reactmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reaction(typ EventType, user, msg, emoji string) Event {
	evt := Event{
		Type:      typ,
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: msg,
		UserID:    user,
		Emoji:     Emoji{Name: emoji},
	}
	// the gateway only resolves members on adds
	if typ == ReactionAdd {
		evt.Member = &Member{UserID: user}
	}
	return evt
}

func watchedGuild(t *testing.T, f MonitorFixture) {
	ctx := context.Background()
	mon := f.Monitor
	require.NoError(t, mon.JoinGuild(ctx, "g1"))
	_, err := mon.SetWatching(ctx, "g1", true)
	require.NoError(t, err)
	_, err = mon.SetMinReactLifespan(ctx, "g1", 500*time.Millisecond)
	require.NoError(t, err)
	_, err = mon.SetMuteRole(ctx, "g1", "muted")
	require.NoError(t, err)
	f.Platform.AddMessage(Message{ID: "m1", ChannelID: "c1", GuildID: "g1", AuthorID: "author"})
	f.Platform.AddMessage(Message{ID: "m2", ChannelID: "c1", GuildID: "g1", AuthorID: "author"})
}

func TestRecordEventEligibility(t *testing.T) {
	assert := assert.New(t)
	f := MonitorTestFixture()
	mon := f.Monitor

	// unknown guild
	assert.False(mon.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍")))

	watchedGuild(t, f)
	f.Authority.SetModerator("mod", true)
	f.Authority.Admins["admin"] = true
	f.Authority.BotAdmins["owner"] = true
	f.Authority.Ignored["quiet"] = true

	assert.False(mon.RecordEvent(reaction(ReactionAdd, "bot", "m1", "👍")))
	assert.False(mon.RecordEvent(reaction(ReactionAdd, "mod", "m1", "👍")))
	assert.False(mon.RecordEvent(reaction(ReactionRemove, "mod", "m1", "👍")))
	assert.False(mon.RecordEvent(reaction(ReactionAdd, "admin", "m1", "👍")))
	assert.False(mon.RecordEvent(reaction(ReactionAdd, "owner", "m1", "👍")))
	ignored := reaction(ReactionAdd, "u1", "m1", "👍")
	ignored.ChannelID = "quiet"
	assert.False(mon.RecordEvent(ignored))

	assert.True(mon.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍")))
	assert.True(mon.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍")))

	snap, err := mon.Snapshot("g1")
	require.NoError(t, err)
	require.Len(t, snap.RecentEvents, 2)
	for _, te := range snap.RecentEvents {
		assert.Equal("u1", te.Event.ActorID())
		assert.Equal(f.Clock.Now(), te.At)
	}
}

func TestWatchToggleStopsIngestion(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	mon := f.Monitor

	require.NoError(t, mon.JoinGuild(ctx, "g1"))
	// guilds start inactive
	assert.False(mon.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍")))

	watchedGuild(t, f)
	assert.True(mon.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍")))

	_, err := mon.SetWatching(ctx, "g1", false)
	require.NoError(t, err)
	assert.False(mon.RecordEvent(reaction(ReactionAdd, "u1", "m2", "👍")))

	snap, err := mon.Snapshot("g1")
	require.NoError(t, err)
	assert.Len(snap.RecentEvents, 1)
	assert.False(snap.Config.Watching)
}

func TestQuickRemoveWindow(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		age     time.Duration
		flagged bool
	}{
		{"inside window", 400 * time.Millisecond, true},
		{"window edge", 500 * time.Millisecond, true},
		{"outside window", 600 * time.Millisecond, false},
		{"same instant", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			f := MonitorTestFixture()
			watchedGuild(t, f)

			assert.True(f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍")))
			f.Clock.Advance(tc.age)
			assert.True(f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍")))
			assert.True(f.Monitor.Tick(ctx))

			if tc.flagged {
				sent := f.Log.Sent()
				require.Len(t, sent, 1)
				assert.Contains(sent[0], "Quick remove: <@u1> removed 👍")
				assert.Contains(sent[0], "https://discord.com/channels/g1/c1/m1")
			} else {
				assert.Empty(f.Log.Sent())
			}
			assert.Empty(f.Reporter.Reported())
		})
	}
}

func TestQuickRemoveNeedsSameMessageAndActor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Clock.Advance(100 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u2", "m1", "👍"))
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m2", "👍"))
	f.Monitor.Tick(ctx)
	assert.Empty(f.Log.Sent())
}

func TestExpiredAddsPurged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Monitor.Tick(ctx)
	snap, _ := f.Monitor.Snapshot("g1")
	assert.Len(snap.RecentAdds, 1)
	assert.Empty(snap.RecentEvents)

	f.Clock.Advance(499 * time.Millisecond)
	f.Monitor.Tick(ctx)
	snap, _ = f.Monitor.Snapshot("g1")
	assert.Len(snap.RecentAdds, 1)

	f.Clock.Advance(time.Millisecond)
	f.Monitor.Tick(ctx)
	snap, _ = f.Monitor.Snapshot("g1")
	assert.Empty(snap.RecentAdds)
}

func TestLateTickStillMatchesBufferedRemove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Clock.Advance(300 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍"))

	// the tick runs well after the add would have expired on its own
	f.Clock.Advance(700 * time.Millisecond)
	f.Monitor.Tick(ctx)
	assert.Len(f.Log.Sent(), 1)

	snap, _ := f.Monitor.Snapshot("g1")
	assert.Empty(snap.RecentAdds)
}

func TestWatchedEmojiRemove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	_, err := f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "🚩"}, EmojiPolicy{Remove: true})
	require.NoError(t, err)

	assert.True(f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🚩")))
	f.Monitor.Tick(ctx)

	assert.Equal([]string{"m1 🚩"}, f.Platform.Cleared)
	assert.Equal([]string{"g1/u1 muted"}, f.Platform.RolesAdded)
	sent := f.Log.Sent()
	require.Len(t, sent, 1)
	assert.Contains(sent[0], "Watched emoji 🚩 used by <@u1> in <#c1>")
	assert.Contains(sent[0], "reaction removed, mute role applied")

	snap, _ := f.Monitor.Snapshot("g1")
	assert.Empty(snap.ActiveMutes)

	flags, err := f.Flags.Get(ctx, "g1/u1")
	require.NoError(t, err)
	assert.Equal([]string{IncidentWatchedEmoji}, flags)
}

func TestWatchedEmojiMuteExpires(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	_, err := f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "🚩"}, EmojiPolicy{Log: true, Mute: true})
	require.NoError(t, err)
	start := f.Clock.Now()
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🚩"))
	f.Monitor.Tick(ctx)

	assert.Equal([]string{"g1/u1 muted"}, f.Platform.RolesAdded)
	snap, _ := f.Monitor.Snapshot("g1")
	assert.Equal(map[string]time.Time{"u1": start}, snap.ActiveMutes)
	sent := f.Log.Sent()
	require.Len(t, sent, 1)
	assert.Contains(sent[0], "logged, reaction removed, muted for 10m0s")

	f.Clock.Advance(DefaultMuteDuration)
	f.Monitor.Tick(ctx)
	assert.Empty(f.Platform.RolesRemoved)

	f.Clock.Advance(time.Second)
	f.Monitor.Tick(ctx)
	assert.Equal([]string{"g1/u1 muted"}, f.Platform.RolesRemoved)
	snap, _ = f.Monitor.Snapshot("g1")
	assert.Empty(snap.ActiveMutes)
}

func TestUnwatchedAndLogOnlyEmoji(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	_, err := f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "👀"}, EmojiPolicy{})
	require.NoError(t, err)
	_, err = f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "🍕"}, EmojiPolicy{Log: true})
	require.NoError(t, err)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👀"))
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🍕"))
	f.Monitor.Tick(ctx)

	assert.Empty(f.Platform.Cleared)
	assert.Empty(f.Platform.RolesAdded)
	sent := f.Log.Sent()
	require.Len(t, sent, 1)
	assert.Contains(sent[0], "Watched emoji 🍕")
}

func TestWatchedEmojiOnDeletedMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	_, err := f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "🚩"}, EmojiPolicy{Remove: true})
	require.NoError(t, err)
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "gone", "🚩"))
	f.Monitor.Tick(ctx)

	assert.Empty(f.Platform.Cleared)
	assert.Empty(f.Log.Sent())
	assert.Empty(f.Reporter.Reported())
}

func TestDispatchErrorsAreIsolated(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	_, err := f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "🚩"}, EmojiPolicy{Remove: true})
	require.NoError(t, err)

	// transient errors are swallowed
	f.Platform.Err = ErrForbidden
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🚩"))
	f.Monitor.Tick(ctx)
	assert.Empty(f.Reporter.Reported())

	// unexpected errors are reported once per event, and do not stop the rest of the batch
	f.Platform.Err = errors.New("boom")
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🚩"))
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u2", "m2", "🚩"))
	f.Monitor.Tick(ctx)
	assert.Len(f.Reporter.Reported(), 2)

	f.Platform.Err = nil
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u3", "m2", "🚩"))
	f.Monitor.Tick(ctx)
	assert.Equal([]string{"g1/u3 muted"}, f.Platform.RolesAdded)
}

func TestRemoveRechecksEligibility(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Clock.Advance(200 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍"))

	f.Authority.SetModerator("u1", true)
	f.Monitor.Tick(ctx)
	assert.Empty(f.Log.Sent())
}

func TestInactiveGuildDrainsBuffer(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	_, err := f.Monitor.WatchEmoji(ctx, "g1", Emoji{Name: "🚩"}, EmojiPolicy{Remove: true})
	require.NoError(t, err)
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🚩"))
	_, err = f.Monitor.SetWatching(ctx, "g1", false)
	require.NoError(t, err)

	f.Monitor.Tick(ctx)
	assert.Equal([]string{"m1 🚩"}, f.Platform.Cleared)
	snap, _ := f.Monitor.Snapshot("g1")
	assert.Empty(snap.RecentEvents)
}

func TestQuickRemoveFirstMatchAndRepeatCount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Clock.Advance(100 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Clock.Advance(200 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍"))
	f.Monitor.Tick(ctx)

	sent := f.Log.Sent()
	require.Len(t, sent, 1)
	assert.Contains(sent[0], "300ms after adding it")
	assert.NotContains(sent[0], "times today")

	f.Clock.Advance(100 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍"))
	f.Monitor.Tick(ctx)
	sent = f.Log.Sent()
	require.Len(t, sent, 2)
	// the oldest add still in the window wins
	assert.Contains(sent[1], "400ms after adding it")
	assert.Contains(sent[1], "(2 times today)")

	flags, _ := f.Flags.Get(ctx, "g1/u1")
	assert.Equal([]string{IncidentQuickRemove}, flags)
}

func TestEndToEndQuickRemove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	f.Clock.Advance(300 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u1", "m1", "👍"))
	f.Monitor.Tick(ctx)
	assert.Len(f.Log.Sent(), 1)

	f.Clock.Advance(50 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionAdd, "u2", "m2", "👍"))
	f.Clock.Advance(550 * time.Millisecond)
	f.Monitor.RecordEvent(reaction(ReactionRemove, "u2", "m2", "👍"))
	f.Monitor.Tick(ctx)
	assert.Len(f.Log.Sent(), 1)
}

type failingStore struct{}

func (failingStore) LoadGuildWatchConfig(ctx context.Context, guildID string) (*WatchConfig, error) {
	return nil, ErrConfigNotFound
}

func (failingStore) SaveGuildWatchConfig(ctx context.Context, cfg *WatchConfig) error {
	return errors.New("disk on fire")
}

func (failingStore) DeleteGuildWatchConfig(ctx context.Context, guildID string) error {
	return nil
}

func (failingStore) ListGuildWatchConfigs(ctx context.Context) ([]WatchConfig, error) {
	return nil, nil
}

func TestConfigPersistsBeforeApplying(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	mon, err := NewMonitor(MonitorConfig{
		Clock:     f.Clock,
		Platform:  f.Platform,
		Authority: f.Authority,
		Store:     failingStore{},
	})
	require.NoError(t, err)

	require.NoError(t, mon.JoinGuild(ctx, "g1"))
	_, err = mon.SetWatching(ctx, "g1", true)
	assert.Error(err)
	cfg, err := mon.Config("g1")
	require.NoError(t, err)
	assert.False(cfg.Watching)
	assert.Equal(DefaultMinReactLifespan, cfg.MinReactLifespan)

	_, err = mon.SetMuteDuration(ctx, "g1", 0)
	assert.ErrorIs(err, ErrInvalidConfig)
	_, err = mon.SetWatching(ctx, "nope", true)
	assert.ErrorIs(err, ErrUnknownGuild)

	// a multi-field update is one save, so a failure leaves every field as it was
	watching := true
	lifespan := 200 * time.Millisecond
	role := "muted"
	_, err = mon.UpdateWatch(ctx, "g1", WatchUpdate{Watching: &watching, MinReactLifespan: &lifespan, MuteRoleID: &role})
	assert.Error(err)
	cfg, err = mon.Config("g1")
	require.NoError(t, err)
	assert.False(cfg.Watching)
	assert.Equal(DefaultMinReactLifespan, cfg.MinReactLifespan)
	assert.Empty(cfg.MuteRoleID)
}

func TestUpdateWatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	require.NoError(t, f.Monitor.JoinGuild(ctx, "g1"))

	watching := true
	lifespan := 200 * time.Millisecond
	mute := time.Hour
	cfg, err := f.Monitor.UpdateWatch(ctx, "g1", WatchUpdate{Watching: &watching, MinReactLifespan: &lifespan, MuteDuration: &mute})
	require.NoError(t, err)
	assert.True(cfg.Watching)
	assert.Equal(lifespan, cfg.MinReactLifespan)
	assert.Equal(mute, cfg.MuteDuration)
	assert.Empty(cfg.MuteRoleID)

	// one bad field rejects the whole update
	tooLong := MaxMuteDuration + time.Second
	off := false
	_, err = f.Monitor.UpdateWatch(ctx, "g1", WatchUpdate{Watching: &off, MuteDuration: &tooLong})
	assert.ErrorIs(err, ErrInvalidConfig)
	cfg, err = f.Monitor.Config("g1")
	require.NoError(t, err)
	assert.True(cfg.Watching)
	assert.Equal(mute, cfg.MuteDuration)

	_, err = f.Monitor.SetMinReactLifespan(ctx, "g1", MaxMinReactLifespan+time.Millisecond)
	assert.ErrorIs(err, ErrInvalidConfig)
	_, err = f.Monitor.UpdateWatch(ctx, "nope", WatchUpdate{Watching: &watching})
	assert.ErrorIs(err, ErrUnknownGuild)
}

func TestGuildLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	watchedGuild(t, f)

	// joining again keeps existing state
	require.NoError(t, f.Monitor.JoinGuild(ctx, "g1"))
	cfg, err := f.Monitor.Config("g1")
	require.NoError(t, err)
	assert.True(cfg.Watching)
	require.NoError(t, f.Monitor.JoinGuild(ctx, "g0"))
	assert.Equal([]string{"g0", "g1"}, f.Monitor.Guilds())

	f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	require.NoError(t, f.Monitor.LeaveGuild(ctx, "g1"))
	assert.False(f.Monitor.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍")))
	_, err = f.Monitor.Snapshot("g1")
	assert.ErrorIs(err, ErrUnknownGuild)
	assert.Equal([]string{"g0"}, f.Monitor.Guilds())
	f.Monitor.Tick(ctx)
	assert.Empty(f.Log.Sent())
}
