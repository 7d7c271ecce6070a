package reactmon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingClock blocks the first Now call made after arm until release is closed, returning the
// time read before blocking.
type stallingClock struct {
	clockwork.Clock
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (c *stallingClock) Now() time.Time {
	now := c.Clock.Now()
	if c.armed.CompareAndSwap(true, false) {
		close(c.entered)
		<-c.release
	}
	return now
}

func TestConcurrentIngestionKeepsClockOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	clk := &stallingClock{Clock: f.Clock, entered: make(chan struct{}), release: make(chan struct{})}
	mon, err := NewMonitor(MonitorConfig{
		Logger:    slog.Default(),
		Clock:     clk,
		Platform:  f.Platform,
		Authority: f.Authority,
		Log:       f.Log,
		Errors:    f.Reporter,
	})
	require.NoError(t, err)
	f.Monitor = mon
	watchedGuild(t, f)
	start := f.Clock.Now()

	clk.armed.Store(true)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mon.RecordEvent(reaction(ReactionAdd, "u1", "m1", "👍"))
	}()
	<-clk.entered
	go func() {
		defer wg.Done()
		mon.RecordEvent(reaction(ReactionAdd, "u2", "m1", "👍"))
	}()
	f.Clock.Advance(400 * time.Millisecond)
	close(clk.release)
	wg.Wait()

	snap, err := mon.Snapshot("g1")
	require.NoError(t, err)
	require.Len(t, snap.RecentEvents, 2)
	assert.Equal("u1", snap.RecentEvents[0].Event.ActorID())
	assert.Equal(start, snap.RecentEvents[0].At)
	assert.Equal("u2", snap.RecentEvents[1].Event.ActorID())
	assert.Equal(start.Add(400*time.Millisecond), snap.RecentEvents[1].At)

	// every add left after a tick is younger than the lifespan
	f.Clock.Advance(100 * time.Millisecond)
	mon.Tick(ctx)
	snap, err = mon.Snapshot("g1")
	require.NoError(t, err)
	require.Len(t, snap.RecentAdds, 1)
	assert.Equal("u2", snap.RecentAdds[0].Event.ActorID())
	for _, add := range snap.RecentAdds {
		assert.True(add.At.After(f.Clock.Now().Add(-snap.Config.MinReactLifespan)))
	}
}

// explodingPlatform panics on any fetch from one channel.
type explodingPlatform struct {
	*FakePlatform
	channelID string
}

func (p explodingPlatform) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	if channelID == p.channelID {
		panic("fetch exploded")
	}
	return p.FakePlatform.FetchMessage(ctx, channelID, messageID)
}

func TestGuildFailuresAreIsolated(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := MonitorTestFixture()
	mon, err := NewMonitor(MonitorConfig{
		Logger:    slog.Default(),
		Clock:     f.Clock,
		Platform:  explodingPlatform{FakePlatform: f.Platform, channelID: "c1"},
		Authority: f.Authority,
		Log:       f.Log,
		Errors:    f.Reporter,
	})
	require.NoError(t, err)
	f.Monitor = mon
	watchedGuild(t, f)

	require.NoError(t, mon.JoinGuild(ctx, "g2"))
	_, err = mon.SetWatching(ctx, "g2", true)
	require.NoError(t, err)
	f.Platform.AddMessage(Message{ID: "m9", ChannelID: "c2", GuildID: "g2", AuthorID: "author"})
	for _, g := range []string{"g1", "g2"} {
		_, err = mon.WatchEmoji(ctx, g, Emoji{Name: "🚩"}, EmojiPolicy{Log: true})
		require.NoError(t, err)
	}

	// g1 sorts first, so its failure happens before g2 is processed
	assert.True(mon.RecordEvent(reaction(ReactionAdd, "u1", "m1", "🚩")))
	other := reaction(ReactionAdd, "u2", "m9", "🚩")
	other.GuildID = "g2"
	other.ChannelID = "c2"
	assert.True(mon.RecordEvent(other))
	assert.True(mon.Tick(ctx))

	reported := f.Reporter.Reported()
	require.Len(t, reported, 1)
	assert.Contains(reported[0].Error(), "fetch exploded")

	sent := f.Log.Sent()
	require.Len(t, sent, 1)
	assert.Contains(sent[0], "g2: Watched emoji 🚩 used by <@u2> in <#c2>")

	// the failed event is dropped, not retried
	snap, err := mon.Snapshot("g1")
	require.NoError(t, err)
	assert.Empty(snap.RecentEvents)
}
