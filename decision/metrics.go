package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var awardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_awards_total",
	Help: "Award decisions by outcome.",
}, []string{"outcome"})

var candidateSkips = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_award_candidate_skips_total",
	Help: "Award candidates passed over, by reason.",
}, []string{"reason"})

var reawardsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_reawards_total",
	Help: "Awards unwound after the winner failed to confirm.",
})
