package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_ledger_appends_total",
	Help: "Ledger entries appended, by type.",
}, []string{"type"})

var verifyFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_ledger_verify_failures_total",
	Help: "Chain verifications which found a mismatch.",
})
