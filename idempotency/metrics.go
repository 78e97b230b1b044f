package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_idempotency_hits_total",
	Help: "Requests answered by replaying a recorded response.",
})

var misses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_idempotency_misses_total",
	Help: "Requests which claimed a fresh idempotency key.",
})

var takeovers = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_idempotency_takeovers_total",
	Help: "Stale in-flight idempotency claims taken over.",
})

var swept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_idempotency_swept_total",
	Help: "Idempotency records deleted by the GC sweep.",
})
