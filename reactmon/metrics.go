package reactmon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reactmon_events_ingested",
	Help: "Number of reaction events buffered for processing",
}, []string{"type"})

var eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reactmon_events_dropped",
	Help: "Number of reaction events dropped by the eligibility filter, by reason",
}, []string{"reason"})

var tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "reactmon_tick_duration_sec",
	Help: "Duration of monitor ticks",
})

var ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reactmon_ticks_skipped",
	Help: "Number of ticks skipped because the previous tick was still running",
})

var quickRemovesDetected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reactmon_quick_removes",
	Help: "Number of quick reaction removes detected",
})

var watchedEmojiActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reactmon_watched_emoji_actions",
	Help: "Number of actions taken on watched emoji reactions",
}, []string{"action"})

var unexpectedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reactmon_unexpected_errors",
	Help: "Number of unexpected errors during tick processing",
}, []string{"where"})

var guildsMonitored = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reactmon_guilds",
	Help: "Number of guilds with watch state",
})
