// Package order turns raw inbound payment requests into validated domain
// orders. Validation happens here, before any gateway is touched, so a
// rejected request never consumes an order identifier on the gateway side.
package order

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yourorg/qrpay/internal/payment"
)

// Amount bounds in minor units. The upper bound mirrors the gateway's own
// limit of 100,000,000 yuan per trade.
const (
	MinAmount int64 = 1
	MaxAmount int64 = 100_000_000 * 100
)

const maxSubjectLen = 256

// Request is an inbound order as submitted by a caller, amounts still in
// decimal string form.
type Request struct {
	OrderID  string `json:"orderId"`
	Amount   string `json:"amount"`
	Subject  string `json:"subject"`
	Provider string `json:"provider"`
}

// Builder validates requests and assembles payment orders.
type Builder struct {
	defaultProvider payment.Provider
}

// NewBuilder creates a builder that stamps the given provider onto requests
// that do not name one.
func NewBuilder(defaultProvider payment.Provider) *Builder {
	if defaultProvider == "" {
		panic("default provider cannot be empty")
	}
	return &Builder{defaultProvider: defaultProvider}
}

// Build validates req and returns the resulting order. An empty order ID gets
// a generated one; everything else must already be well-formed.
func (b *Builder) Build(req Request) (payment.Order, error) {
	amount, err := payment.ParseAmount(req.Amount)
	if err != nil {
		rejectionsTotal.WithLabelValues("amount_malformed").Inc()
		return payment.Order{}, err
	}
	if amount < MinAmount {
		rejectionsTotal.WithLabelValues("amount_too_small").Inc()
		return payment.Order{}, fmt.Errorf("order: amount %s below minimum %s", req.Amount, payment.FormatAmount(MinAmount))
	}
	if amount > MaxAmount {
		rejectionsTotal.WithLabelValues("amount_too_large").Inc()
		return payment.Order{}, fmt.Errorf("order: amount %s above maximum %s", req.Amount, payment.FormatAmount(MaxAmount))
	}

	if req.Subject == "" {
		rejectionsTotal.WithLabelValues("subject_missing").Inc()
		return payment.Order{}, fmt.Errorf("order: subject is required")
	}
	if len(req.Subject) > maxSubjectLen {
		rejectionsTotal.WithLabelValues("subject_too_long").Inc()
		return payment.Order{}, fmt.Errorf("order: subject exceeds %d bytes", maxSubjectLen)
	}

	provider := b.defaultProvider
	if req.Provider != "" {
		provider = payment.Provider(req.Provider)
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = "ORDER_" + uuid.NewString()
	}

	builtTotal.Inc()
	return payment.Order{
		OrderID:  orderID,
		Amount:   amount,
		Subject:  req.Subject,
		Provider: provider,
	}, nil
}
