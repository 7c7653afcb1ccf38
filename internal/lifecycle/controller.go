// Package lifecycle owns the state machine for payment orders: issuing
// creation, interpreting query results, applying cancellation, and applying
// inbound notifications. Status is monotonic toward a terminal value; once an
// order is observed SUCCESS or FAILED by any path, later writes that would
// regress it are discarded and further operations return the cached terminal
// result.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/qrpay/internal/gateway"
	"github.com/yourorg/qrpay/internal/gateway/circuitbreaker"
	"github.com/yourorg/qrpay/internal/payment"
	"github.com/yourorg/qrpay/internal/reporting"
)

// orderState is the per-order record. There is no durable store: state is
// reconstructed from the gateway on first touch, the record only makes the
// terminal state absorbing within this process.
type orderState struct {
	order    payment.Order
	status   payment.Status
	tradeNo  string
	terminal *payment.Result // cached result of the terminal transition
}

// Controller drives the order state machine. The gateway adapters and the
// notification verifier are pure functions returning results for the
// controller to apply; nothing else mutates order status.
type Controller struct {
	registry        *gateway.Registry
	breaker         *circuitbreaker.CircuitBreaker
	journal         *reporting.Journal
	defaultProvider payment.Provider

	mu     sync.Mutex
	orders map[string]*orderState
}

// NewController creates a Controller. A nil breaker or journal gets a default
// instance; the registry is required.
func NewController(registry *gateway.Registry, breaker *circuitbreaker.CircuitBreaker, journal *reporting.Journal, defaultProvider payment.Provider) *Controller {
	if registry == nil {
		panic("gateway registry cannot be nil")
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{})
	}
	if journal == nil {
		journal = reporting.NewJournal()
	}
	return &Controller{
		registry:        registry,
		breaker:         breaker,
		journal:         journal,
		defaultProvider: defaultProvider,
		orders:          make(map[string]*orderState),
	}
}

// Journal returns the journal the controller records into.
func (c *Controller) Journal() *reporting.Journal { return c.journal }

// Status reports the controller's view of an order, if it has one.
func (c *Controller) Status(orderID string) (payment.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.orders[orderID]
	if !ok {
		return "", false
	}
	return st.status, true
}

// callGateway resolves the adapter, gates the call through the circuit
// breaker, and feeds the outcome back into it. A PENDING result counts as a
// healthy call even when Success is false: "trade not found" during polling
// is expected traffic, not a provider fault.
func (c *Controller) callGateway(provider payment.Provider, orderID string, op func(gateway.Gateway) payment.Result) payment.Result {
	gw, err := c.registry.Get(provider)
	if err != nil {
		return payment.Result{
			Success:      false,
			OrderID:      orderID,
			Status:       payment.StatusFailed,
			ErrorMessage: err.Error(),
		}
	}
	name := string(provider)
	if !c.breaker.Allow(name) {
		return payment.Result{
			Success:      false,
			OrderID:      orderID,
			Status:       payment.StatusFailed,
			ErrorMessage: fmt.Sprintf("circuit open for provider %s", provider),
		}
	}
	res := op(gw)
	if res.Success || res.Status == payment.StatusPending {
		c.breaker.RecordSuccess(name)
	} else {
		c.breaker.RecordFailure(name)
	}
	return res
}

// Create submits the order for creation: CREATED collapses into PENDING on
// adapter success or FAILED on adapter failure. Resubmitting a known order is
// rejected without a gateway call.
func (c *Controller) Create(ctx context.Context, order payment.Order) payment.Result {
	_, span := otel.Tracer("lifecycle").Start(ctx, "Controller.Create")
	defer span.End()

	if order.Provider == "" {
		order.Provider = c.defaultProvider
	}

	c.mu.Lock()
	if st, ok := c.orders[order.OrderID]; ok {
		if st.terminal != nil {
			res := *st.terminal
			c.mu.Unlock()
			return res
		}
		status := st.status
		c.mu.Unlock()
		return payment.Result{
			Success:      false,
			OrderID:      order.OrderID,
			Status:       status,
			ErrorMessage: "order already submitted",
		}
	}
	c.mu.Unlock()

	res := c.callGateway(order.Provider, order.OrderID, func(gw gateway.Gateway) payment.Result {
		return gw.CreateOrder(ctx, order)
	})

	c.mu.Lock()
	st := &orderState{order: order, status: payment.StatusPending}
	if !res.Success {
		st.status = payment.StatusFailed
		cached := res
		st.terminal = &cached
	}
	c.orders[order.OrderID] = st
	status := st.status
	c.mu.Unlock()

	transitionsTotal.WithLabelValues(string(status)).Inc()
	c.journal.Record(reporting.LogEntry{
		OrderID:      order.OrderID,
		Operation:    reporting.OpCreate,
		Provider:     string(order.Provider),
		Status:       string(res.Status),
		Success:      res.Success,
		Amount:       order.Amount,
		SubCode:      res.SubCode,
		ErrorMessage: res.ErrorMessage,
	})
	log.Printf("lifecycle: create order %s -> status=%s success=%t", order.OrderID, res.Status, res.Success)
	return res
}

// Query probes the gateway for the order's status and applies the outcome.
// Terminal states are absorbing: once reached, Query is a no-op returning the
// cached terminal result without a gateway round-trip.
func (c *Controller) Query(ctx context.Context, orderID string) payment.Result {
	_, span := otel.Tracer("lifecycle").Start(ctx, "Controller.Query")
	defer span.End()

	c.mu.Lock()
	provider := c.defaultProvider
	if st, ok := c.orders[orderID]; ok {
		if st.terminal != nil {
			res := *st.terminal
			c.mu.Unlock()
			return res
		}
		provider = st.order.Provider
	}
	c.mu.Unlock()

	res := c.callGateway(provider, orderID, func(gw gateway.Gateway) payment.Result {
		return gw.QueryOrder(ctx, orderID)
	})

	c.mu.Lock()
	st, ok := c.orders[orderID]
	if !ok {
		// Order state is gateway-derived; reconstruct a record for an order
		// this process has not seen (e.g. after a restart).
		st = &orderState{order: payment.Order{OrderID: orderID, Provider: provider}, status: payment.StatusPending}
		c.orders[orderID] = st
	}
	if st.terminal != nil {
		// A concurrent path won the race to terminal while this probe was in
		// flight; its result stands.
		res := *st.terminal
		c.mu.Unlock()
		return res
	}
	if res.TradeNo != "" {
		st.tradeNo = res.TradeNo
	}
	// Only a clean gateway answer reporting a terminal trade status latches
	// the machine. A failed query call (transport error, business failure)
	// must not permanently close an order the gateway still considers
	// payable.
	if res.Success && res.Status.Terminal() {
		st.status = res.Status
		cached := res
		st.terminal = &cached
		transitionsTotal.WithLabelValues(string(res.Status)).Inc()
	}
	c.mu.Unlock()

	c.journal.Record(reporting.LogEntry{
		OrderID:      orderID,
		Operation:    reporting.OpQuery,
		Provider:     string(provider),
		Status:       string(res.Status),
		Success:      res.Success,
		SubCode:      res.SubCode,
		ErrorMessage: res.ErrorMessage,
	})
	return res
}

// Cancel moves a pending order to FAILED through the gateway. Cancelling an
// already-terminal order is a no-op returning the existing terminal result.
func (c *Controller) Cancel(ctx context.Context, orderID string) payment.Result {
	_, span := otel.Tracer("lifecycle").Start(ctx, "Controller.Cancel")
	defer span.End()

	c.mu.Lock()
	provider := c.defaultProvider
	if st, ok := c.orders[orderID]; ok {
		if st.terminal != nil {
			res := *st.terminal
			c.mu.Unlock()
			log.Printf("lifecycle: cancel order %s ignored, already %s", orderID, res.Status)
			return res
		}
		provider = st.order.Provider
	}
	c.mu.Unlock()

	res := c.callGateway(provider, orderID, func(gw gateway.Gateway) payment.Result {
		return gw.CancelOrder(ctx, orderID)
	})

	if res.Success {
		c.mu.Lock()
		st, ok := c.orders[orderID]
		if !ok {
			st = &orderState{order: payment.Order{OrderID: orderID, Provider: provider}}
			c.orders[orderID] = st
		}
		if st.terminal != nil {
			res = *st.terminal
			c.mu.Unlock()
			return res
		}
		st.status = payment.StatusFailed
		cached := res
		st.terminal = &cached
		c.mu.Unlock()
		transitionsTotal.WithLabelValues(string(payment.StatusFailed)).Inc()
	}

	c.journal.Record(reporting.LogEntry{
		OrderID:      orderID,
		Operation:    reporting.OpCancel,
		Provider:     string(provider),
		Status:       string(res.Status),
		Success:      res.Success,
		SubCode:      res.SubCode,
		ErrorMessage: res.ErrorMessage,
	})
	log.Printf("lifecycle: cancel order %s -> status=%s action=%s", orderID, res.Status, res.Action)
	return res
}

// ApplyNotifySuccess resolves an order to SUCCESS from a verified gateway
// notification. Idempotent: repeated SUCCESS writes are harmless, and an
// order already terminal keeps its existing result.
func (c *Controller) ApplyNotifySuccess(ctx context.Context, orderID, tradeNo string) payment.Result {
	_, span := otel.Tracer("lifecycle").Start(ctx, "Controller.ApplyNotifySuccess")
	defer span.End()

	c.mu.Lock()
	st, ok := c.orders[orderID]
	if !ok {
		st = &orderState{order: payment.Order{OrderID: orderID, Provider: c.defaultProvider}, status: payment.StatusPending}
		c.orders[orderID] = st
	}
	if st.terminal != nil {
		res := *st.terminal
		c.mu.Unlock()
		return res
	}
	if tradeNo != "" {
		st.tradeNo = tradeNo
	}
	res := payment.Result{
		Success: true,
		OrderID: orderID,
		TradeNo: st.tradeNo,
		Status:  payment.StatusSuccess,
	}
	st.status = payment.StatusSuccess
	cached := res
	st.terminal = &cached
	provider := st.order.Provider
	c.mu.Unlock()

	transitionsTotal.WithLabelValues(string(payment.StatusSuccess)).Inc()
	c.journal.Record(reporting.LogEntry{
		OrderID:   orderID,
		Operation: reporting.OpNotify,
		Provider:  string(provider),
		Status:    string(payment.StatusSuccess),
		Success:   true,
	})
	log.Printf("lifecycle: order %s resolved SUCCESS via notification", orderID)
	return res
}
