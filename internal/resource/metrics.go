package resource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "owl_resource_units",
		Help: "Resource units by capability and state (online, available, held).",
	}, []string{"capability", "state"})

	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "owl_resource_reservations_total",
		Help: "Reservation attempts by capability and outcome.",
	}, []string{"capability", "result"})
)
