package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var txCommits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_tx_commits_total",
	Help: "Serializable transactions committed, by operation.",
}, []string{"op"})

var txRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_tx_retries_total",
	Help: "Serializable transaction attempts retried after a transient conflict, by operation.",
}, []string{"op"})

var txFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_tx_failures_total",
	Help: "Serializable transactions which failed terminally, by operation and class.",
}, []string{"op", "class"})

var txDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "souk_tx_duration_seconds",
	Help:    "Duration of individual transaction attempts, by operation.",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
}, []string{"op"})
