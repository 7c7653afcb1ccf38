package polling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpay_polling_probes_total",
		Help: "Status-query probes issued by polling sessions.",
	})
	timeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpay_polling_timeouts_total",
		Help: "Polling sessions that hit their deadline and triggered the timeout action.",
	})
)

// GetProbesTotal exposes the probe counter for tests.
func GetProbesTotal() prometheus.Counter { return probesTotal }

// GetTimeoutsTotal exposes the timeout counter for tests.
func GetTimeoutsTotal() prometheus.Counter { return timeoutsTotal }
