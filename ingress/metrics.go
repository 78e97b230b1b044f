package ingress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "souk_ingress_requests_total",
	Help: "Requests served by the ingress, by route.",
}, []string{"route"})
