package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_commands_total",
	Help: "Commands received, by kind.",
}, []string{"kind"})

var replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_command_replays_total",
	Help: "Commands served from the idempotency store.",
})

var refusalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_command_refusals_total",
	Help: "Commands refused by launch-control flags, by kind.",
}, []string{"kind"})
