package order

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	builtTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpay_orders_built_total",
		Help: "Orders that passed validation and were assembled.",
	})
	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrpay_order_rejections_total",
			Help: "Requests rejected during validation, by reason.",
		},
		[]string{"reason"},
	)
)

// GetBuiltTotal exposes the built counter for tests.
func GetBuiltTotal() prometheus.Counter { return builtTotal }

// GetRejectionsTotal exposes the rejection counter for tests.
func GetRejectionsTotal() *prometheus.CounterVec { return rejectionsTotal }
