package stock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var holdsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_stock_holds_total",
	Help: "Stock hold operations applied, by action.",
}, []string{"action"})
