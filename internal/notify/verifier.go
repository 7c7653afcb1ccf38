// Package notify receives asynchronous gateway callbacks, verifies their
// signatures through the owning gateway, and applies verified payment
// confirmations to the order lifecycle. An unverifiable notification is never
// acted on, whatever status it claims.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/qrpay/internal/gateway"
	"github.com/yourorg/qrpay/internal/payment"
)

// Acknowledgements written back to the gateway. Alipay retries a notification
// until it reads the literal body "success".
const (
	AckSuccess = "success"
	AckFailure = "fail"
)

// Lifecycle is the slice of the order controller a verifier needs.
type Lifecycle interface {
	ApplyNotifySuccess(ctx context.Context, orderID, tradeNo string) payment.Result
}

// Verifier dispatches raw notification parameters to the right gateway for
// signature verification and forwards confirmed payments to the lifecycle.
type Verifier struct {
	registry  *gateway.Registry
	lifecycle Lifecycle
}

func NewVerifier(registry *gateway.Registry, lifecycle Lifecycle) *Verifier {
	if registry == nil {
		panic("notify verifier requires a gateway registry")
	}
	if lifecycle == nil {
		panic("notify verifier requires a lifecycle controller")
	}
	return &Verifier{registry: registry, lifecycle: lifecycle}
}

// HandleNotify verifies and applies one notification. The returned ack is the
// exact body to answer the gateway with; err carries the reason when the ack
// is AckFailure. A verified notification whose trade status is not a payment
// confirmation is acknowledged without touching the order.
func (v *Verifier) HandleNotify(ctx context.Context, provider payment.Provider, params map[string]string) (string, error) {
	ctx, span := otel.Tracer("notify").Start(ctx, "Verifier.HandleNotify")
	defer span.End()

	verificationsTotal.WithLabelValues(string(provider), "received").Inc()

	gw, err := v.registry.Get(provider)
	if err != nil {
		verificationsTotal.WithLabelValues(string(provider), "rejected").Inc()
		return AckFailure, err
	}

	paid, err := gw.HandleNotify(ctx, params)
	if err != nil {
		verificationsTotal.WithLabelValues(string(provider), "rejected").Inc()
		if errors.Is(err, gateway.ErrInvalidSignature) {
			log.Printf("notify: rejected notification for order %q: signature verification failed", params["out_trade_no"])
		} else {
			log.Printf("notify: rejected notification for order %q: %v", params["out_trade_no"], err)
		}
		return AckFailure, err
	}

	if !paid {
		// Verified but not a payment confirmation (e.g. WAIT_BUYER_PAY or
		// TRADE_CLOSED). Acknowledge so the gateway stops retrying.
		verificationsTotal.WithLabelValues(string(provider), "ignored").Inc()
		return AckSuccess, nil
	}

	orderID := params["out_trade_no"]
	if orderID == "" {
		verificationsTotal.WithLabelValues(string(provider), "rejected").Inc()
		return AckFailure, fmt.Errorf("notify: verified notification carries no out_trade_no")
	}

	res := v.lifecycle.ApplyNotifySuccess(ctx, orderID, params["trade_no"])
	verificationsTotal.WithLabelValues(string(provider), "applied").Inc()
	log.Printf("notify: order %s confirmed paid via notification (trade_no=%s)", orderID, res.TradeNo)
	return AckSuccess, nil
}
