package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var unexpectedErrorsReported = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_unexpected_errors_reported",
	Help: "Number of unexpected errors reported by the reaction monitor",
})

var adminAPIChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_admin_api_changes",
	Help: "Number of configuration changes made through the admin API",
}, []string{"kind"})
