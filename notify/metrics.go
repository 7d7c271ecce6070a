package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var modLogMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notify_modlog_messages",
	Help: "Number of mod log messages, by outcome",
}, []string{"outcome"})
