// Package mock provides a hookable in-memory gateway for tests and for
// running the server without real Alipay credentials.
package mock

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourorg/qrpay/internal/gateway"
	"github.com/yourorg/qrpay/internal/payment"
)

// Gateway is a mock implementation of gateway.Gateway. Each operation calls
// its corresponding hook when set, otherwise a reasonable default.
type Gateway struct {
	Provider payment.Provider

	CreateOrderFunc  func(ctx context.Context, order payment.Order) payment.Result
	QueryOrderFunc   func(ctx context.Context, orderID string) payment.Result
	CancelOrderFunc  func(ctx context.Context, orderID string) payment.Result
	HandleNotifyFunc func(ctx context.Context, notifyData map[string]string) (bool, error)
}

// NewGateway creates a mock gateway for the given provider.
func NewGateway(provider payment.Provider) *Gateway {
	return &Gateway{Provider: provider}
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() payment.Provider { return g.Provider }

// CreateOrder defaults to a pending order with a generated QR payload.
func (g *Gateway) CreateOrder(ctx context.Context, order payment.Order) payment.Result {
	if g.CreateOrderFunc != nil {
		return g.CreateOrderFunc(ctx, order)
	}
	return payment.Result{
		Success: true,
		OrderID: order.OrderID,
		Status:  payment.StatusPending,
		QRCode:  "https://qr.example.test/" + uuid.NewString(),
		TraceID: uuid.NewString(),
	}
}

// QueryOrder defaults to a still-pending order.
func (g *Gateway) QueryOrder(ctx context.Context, orderID string) payment.Result {
	if g.QueryOrderFunc != nil {
		return g.QueryOrderFunc(ctx, orderID)
	}
	return payment.Result{
		Success: true,
		OrderID: orderID,
		Status:  payment.StatusPending,
	}
}

// CancelOrder defaults to a successful close.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) payment.Result {
	if g.CancelOrderFunc != nil {
		return g.CancelOrderFunc(ctx, orderID)
	}
	return payment.Result{
		Success: true,
		OrderID: orderID,
		Status:  payment.StatusFailed,
		Action:  payment.ActionClose,
	}
}

// HandleNotify defaults to treating any payload carrying a sign field as
// verified, reporting success for success-equivalent trade statuses.
func (g *Gateway) HandleNotify(ctx context.Context, notifyData map[string]string) (bool, error) {
	if g.HandleNotifyFunc != nil {
		return g.HandleNotifyFunc(ctx, notifyData)
	}
	if notifyData["sign"] == "" {
		return false, gateway.ErrInvalidSignature
	}
	status := notifyData["trade_status"]
	return status == "TRADE_SUCCESS" || status == "TRADE_FINISHED", nil
}
