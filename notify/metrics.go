package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var emitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_events_emitted_total",
	Help: "Order events published to the outbound channel.",
})

var emitFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_events_emit_failures_total",
	Help: "Order events which failed to publish.",
})
