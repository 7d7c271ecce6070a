package discord

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var restCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discord_rest_calls",
	Help: "Number of Discord REST API calls, by route and HTTP status",
}, []string{"route", "status"})

var restDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "discord_rest_duration_sec",
	Help: "Duration of Discord REST API calls, including retries",
}, []string{"route"})

var gatewayDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discord_gateway_dispatches",
	Help: "Number of gateway dispatch events received, by type",
}, []string{"type"})

var gatewayReconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discord_gateway_reconnects",
	Help: "Number of gateway reconnect attempts",
})
