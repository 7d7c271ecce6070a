package watchstore

import (
	"context"
	"testing"
	"time"

	"github.com/guildmod/warden/reactmon"
	"github.com/guildmod/warden/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGormStore(t *testing.T) *GormStore {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	s, err := NewGormStore(db)
	require.NoError(t, err)
	return s
}

func exerciseConfigStore(t *testing.T, s reactmon.ConfigStore) {
	assert := assert.New(t)
	ctx := context.Background()

	_, err := s.LoadGuildWatchConfig(ctx, "g1")
	assert.ErrorIs(err, reactmon.ErrConfigNotFound)

	cfg := reactmon.DefaultWatchConfig("g1")
	cfg.Watching = true
	cfg.MinReactLifespan = 1500 * time.Millisecond
	cfg.MuteRoleID = "r1"
	cfg.Watchlist["🚩"] = reactmon.EmojiPolicy{Remove: true}
	cfg.Watchlist["1234"] = reactmon.EmojiPolicy{Log: true, Mute: true}
	require.NoError(t, s.SaveGuildWatchConfig(ctx, &cfg))

	loaded, err := s.LoadGuildWatchConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(cfg, *loaded)

	// overwrite: emoji removed from the watchlist must not come back
	delete(cfg.Watchlist, "🚩")
	cfg.MuteDuration = time.Hour
	require.NoError(t, s.SaveGuildWatchConfig(ctx, &cfg))
	loaded, err = s.LoadGuildWatchConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(cfg, *loaded)

	other := reactmon.DefaultWatchConfig("g0")
	require.NoError(t, s.SaveGuildWatchConfig(ctx, &other))
	all, err := s.ListGuildWatchConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal("g0", all[0].GuildID)
	assert.Equal("g1", all[1].GuildID)

	require.NoError(t, s.DeleteGuildWatchConfig(ctx, "g1"))
	require.NoError(t, s.DeleteGuildWatchConfig(ctx, "g1"))
	_, err = s.LoadGuildWatchConfig(ctx, "g1")
	assert.ErrorIs(err, reactmon.ErrConfigNotFound)

	assert.Error(s.SaveGuildWatchConfig(ctx, &reactmon.WatchConfig{}))
}

func TestMemStore(t *testing.T) {
	exerciseConfigStore(t, NewMemStore())
}

func TestGormStore(t *testing.T) {
	exerciseConfigStore(t, testGormStore(t))
}

func TestMonitorRestoresConfig(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := testGormStore(t)

	f := reactmon.MonitorTestFixture()
	mon, err := reactmon.NewMonitor(reactmon.MonitorConfig{
		Clock:     f.Clock,
		Platform:  f.Platform,
		Authority: f.Authority,
		Store:     store,
	})
	require.NoError(t, err)
	require.NoError(t, mon.JoinGuild(ctx, "g1"))
	_, err = mon.SetWatching(ctx, "g1", true)
	require.NoError(t, err)
	_, err = mon.WatchEmoji(ctx, "g1", reactmon.Emoji{Name: "🚩"}, reactmon.EmojiPolicy{Log: true})
	require.NoError(t, err)

	// a fresh monitor (eg, after restart) picks the config back up
	mon2, err := reactmon.NewMonitor(reactmon.MonitorConfig{
		Clock:     f.Clock,
		Platform:  f.Platform,
		Authority: f.Authority,
		Store:     store,
	})
	require.NoError(t, err)
	require.NoError(t, mon2.Startup(ctx))
	assert.Equal([]string{"g1"}, mon2.Guilds())
	cfg, err := mon2.Config("g1")
	require.NoError(t, err)
	assert.True(cfg.Watching)
	assert.Equal(reactmon.EmojiPolicy{Log: true}, cfg.Watchlist["🚩"])

	require.NoError(t, mon2.LeaveGuild(ctx, "g1"))
	_, err = store.LoadGuildWatchConfig(ctx, "g1")
	assert.ErrorIs(err, reactmon.ErrConfigNotFound)
}
