package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_order_transitions_total",
	Help: "Order state transitions applied, by target state.",
}, []string{"to"})
