// Package payment holds the domain types shared by the gateway adapters,
// the order lifecycle controller, and the polling coordinator:
// orders, normalized operation results, and the status enumeration.
package payment

import (
	"fmt"
	"strconv"
	"strings"
)

// Provider identifies a payment gateway.
type Provider string

const (
	// ProviderAlipay is the Alipay QR-code gateway. Adding a provider means
	// adding a constant here plus a gateway implementation; call sites go
	// through the registry and do not change.
	ProviderAlipay Provider = "ALIPAY"
)

// Status is the normalized payment order status.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether the status is absorbing: once an order reaches
// SUCCESS or FAILED no transition may move it back to PENDING.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TradeAction describes what a successful cancellation did on the gateway side.
type TradeAction string

const (
	ActionClose  TradeAction = "close"  // order was unpaid, trade closed
	ActionRefund TradeAction = "refund" // order was paid, refund triggered
)

// Order is a caller-defined request to collect a fixed amount under a given
// identifier. Immutable once submitted for creation.
type Order struct {
	OrderID  string   `json:"orderId"`
	Amount   int64    `json:"amount"` // minor units (fen), avoids float drift
	Subject  string   `json:"subject"`
	Provider Provider `json:"provider"`
}

// Result is the outcome of any lifecycle operation. Success reports whether
// the operation itself completed without transport or protocol error,
// independent of the payment outcome carried in Status.
type Result struct {
	Success      bool        `json:"success"`
	OrderID      string      `json:"orderId"`
	TradeNo      string      `json:"tradeNo,omitempty"`
	Status       Status      `json:"status"`
	QRCode       string      `json:"qrCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	SubCode      string      `json:"subCode,omitempty"`
	SubMsg       string      `json:"subMsg,omitempty"`
	TraceID      string      `json:"traceId,omitempty"`
	Action       TradeAction `json:"action,omitempty"`
}

// FormatAmount renders minor units as the gateway's decimal string, e.g. 1000 -> "10.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseAmount converts a decimal amount string ("10.00", "0.01") to minor
// units. At most two fractional digits are accepted; parsing through strings
// rather than float64 keeps amounts exact.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("payment: empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("payment: invalid amount %q: %w", s, err)
	}
	if w < 0 || strings.HasPrefix(whole, "-") {
		return 0, fmt.Errorf("payment: amount %q must be positive", s)
	}
	switch len(frac) {
	case 0:
		return w * 100, nil
	case 1:
		frac += "0"
	case 2:
		// as-is
	default:
		return 0, fmt.Errorf("payment: amount %q has more than two fractional digits", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("payment: invalid amount %q: %w", s, err)
	}
	return w*100 + f, nil
}
