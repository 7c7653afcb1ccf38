// Package gateway defines the interface for payment gateway adapters and the
// provider registry used to look them up. Adapters handle all gateway-specific
// API calls, including serialization, signing, and error mapping, normalizing
// raw gateway responses into a common payment.Result.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/qrpay/internal/payment"
)

// ErrInvalidSignature is returned by HandleNotify when the asynchronous
// notification's signature does not verify. It is never recovered into a
// Result: an unverified payload must not influence order status, so the
// caller has to handle it explicitly.
var ErrInvalidSignature = errors.New("gateway: notification signature verification failed")

// Gateway is implemented by each payment gateway adapter. The three lifecycle
// operations recover transport and protocol failures locally, encoding them as
// {Success:false, Status:FAILED} rather than returning a Go error.
type Gateway interface {
	// Name returns the provider this adapter serves.
	Name() payment.Provider

	// CreateOrder submits the order for pre-creation. On gateway success the
	// result carries Status PENDING and the scannable QR payload.
	CreateOrder(ctx context.Context, order payment.Order) payment.Result

	// QueryOrder fetches the current trade status. A gateway-reported
	// "trade not found" is returned as {Success:false, Status:PENDING} so a
	// not-yet-visible order is retried rather than abandoned.
	QueryOrder(ctx context.Context, orderID string) payment.Result

	// CancelOrder cancels the order. On gateway success the result is
	// {Success:true, Status:FAILED} with Action reporting close vs refund.
	CancelOrder(ctx context.Context, orderID string) payment.Result

	// HandleNotify verifies the notification signature, returning
	// ErrInvalidSignature when it does not check out. With a valid signature
	// it reports whether the payload's trade status is success-equivalent.
	HandleNotify(ctx context.Context, notifyData map[string]string) (bool, error)
}

// Registry is the capability-keyed mapping from provider to adapter,
// constructed once at process start and passed explicitly to the controller.
type Registry struct {
	gateways map[payment.Provider]Gateway
}

// NewRegistry builds a registry over the given adapters, keyed by Name().
func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[payment.Provider]Gateway, len(gws))}
	for _, gw := range gws {
		r.gateways[gw.Name()] = gw
	}
	return r
}

// Get returns the adapter for the given provider.
func (r *Registry) Get(p payment.Provider) (Gateway, error) {
	gw, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("gateway: no adapter registered for provider %s", p)
	}
	return gw, nil
}

// Providers lists the registered providers.
func (r *Registry) Providers() []payment.Provider {
	ps := make([]payment.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		ps = append(ps, p)
	}
	return ps
}
