package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrpay_notify_verifications_total",
		Help: "Gateway notifications processed by the verifier, by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

// GetVerificationsTotal exposes the verification counter for tests.
func GetVerificationsTotal() *prometheus.CounterVec {
	return verificationsTotal
}
