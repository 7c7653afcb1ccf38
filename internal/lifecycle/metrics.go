package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrpay_lifecycle_transitions_total",
		Help: "Order status transitions applied by the lifecycle controller, by resulting status.",
	},
	[]string{"status"},
)

// GetTransitionsTotal exposes the transition counter for tests.
func GetTransitionsTotal() *prometheus.CounterVec {
	return transitionsTotal
}
