package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_sweep_runs_total",
	Help: "Sweep executions which won the task's advisory lock.",
}, []string{"task"})

var sweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_sweep_errors_total",
	Help: "Sweep runs or swept orders which failed.",
}, []string{"task"})

var sweptOrders = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_swept_orders_total",
	Help: "Orders advanced by a sweep.",
}, []string{"task"})

var reconcileMismatches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "souk_reconcile_mismatches_total",
	Help: "Ledger chains which failed reconciliation.",
})
