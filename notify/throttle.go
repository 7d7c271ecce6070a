package notify

import (
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
)

// Throttle caps the number of messages per guild over a sliding window.
type Throttle struct {
	clock    clockwork.Clock
	window   time.Duration
	limit    int64
	limiters *xsync.MapOf[string, *guildLimiter]
}

type guildLimiter struct {
	lim  *slidingwindow.Limiter
	stop slidingwindow.StopFunc
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// NewThrottle allows limit messages per guild in any window. A non-positive limit disables
// throttling.
func NewThrottle(limit int64, window time.Duration, clk clockwork.Clock) *Throttle {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Throttle{
		clock:    clk,
		window:   window,
		limit:    limit,
		limiters: xsync.NewMapOf[string, *guildLimiter](),
	}
}

func (t *Throttle) Allow(guildID string) bool {
	if t == nil || t.limit <= 0 {
		return true
	}
	gl, _ := t.limiters.LoadOrCompute(guildID, func() *guildLimiter {
		lim, stop := slidingwindow.NewLimiter(t.window, t.limit, windowFunc)
		return &guildLimiter{lim: lim, stop: stop}
	})
	return gl.lim.AllowN(t.clock.Now(), 1)
}

// Forget drops the guild's window, eg when the bot leaves it.
func (t *Throttle) Forget(guildID string) {
	if t == nil {
		return
	}
	if gl, ok := t.limiters.LoadAndDelete(guildID); ok {
		gl.stop()
	}
}
