// Package alipay implements the gateway adapter for the Alipay QR-code
// ("precreate") flow: order creation, status query, cancellation, and
// signature verification of inbound asynchronous notifications.
package alipay

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yourorg/qrpay/internal/gateway"
	"github.com/yourorg/qrpay/internal/payment"
)

const (
	// Gateway result codes.
	codeSuccess        = "10000"
	codeBusinessFailed = "40004"

	// Business sub-code for a query against an order the gateway has not seen
	// yet. Not fatal: the order may simply not be visible to the query side.
	subCodeTradeNotExist = "ACQ.TRADE_NOT_EXIST"

	// Trade statuses reported by query and notify.
	tradeWaitBuyerPay = "WAIT_BUYER_PAY"
	tradeClosed       = "TRADE_CLOSED"
	tradeSuccess      = "TRADE_SUCCESS"
	tradeFinished     = "TRADE_FINISHED"

	methodPrecreate = "alipay.trade.precreate"
	methodQuery     = "alipay.trade.query"
	methodCancel    = "alipay.trade.cancel"

	defaultGatewayURL = "https://openapi.alipay.com/gateway.do"
	defaultTimeout    = 10 * time.Second
)

// Config holds the credentials and endpoints for one Alipay app. Keys are
// accepted PEM-encoded or as the bare base64 the Alipay console hands out.
type Config struct {
	AppID      string
	PrivateKey string // app private key, signs outbound requests
	PublicKey  string // alipay public key, verifies inbound notifications
	GatewayURL string
	NotifyURL  string // where the gateway should deliver async notifications
	Timeout    time.Duration
}

// Gateway is the Alipay implementation of gateway.Gateway.
type Gateway struct {
	cfg    Config
	client *resty.Client

	signKey   *rsa.PrivateKey
	verifyKey *rsa.PublicKey
}

// NewGateway parses the configured keys and builds the HTTP client.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("alipay: app id is required")
	}
	priv, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, err
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = defaultGatewayURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Gateway{
		cfg:       cfg,
		client:    resty.New().SetTimeout(cfg.Timeout),
		signKey:   priv,
		verifyKey: pub,
	}, nil
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() payment.Provider { return payment.ProviderAlipay }

// gatewayResponse is the normalized body of any alipay.trade.* response.
type gatewayResponse struct {
	Code        string `json:"code"`
	Msg         string `json:"msg"`
	SubCode     string `json:"sub_code"`
	SubMsg      string `json:"sub_msg"`
	OutTradeNo  string `json:"out_trade_no"`
	TradeNo     string `json:"trade_no"`
	TradeStatus string `json:"trade_status"`
	QRCode      string `json:"qr_code"`
	Action      string `json:"action"`
}

// exec performs one signed gateway call and unwraps the method's response
// envelope, e.g. {"alipay_trade_query_response": {...}, "sign": "..."}.
func (g *Gateway) exec(ctx context.Context, method string, bizContent map[string]any) (*gatewayResponse, string, error) {
	biz, err := json.Marshal(bizContent)
	if err != nil {
		return nil, "", fmt.Errorf("alipay: marshal biz_content: %w", err)
	}

	params := map[string]string{
		"app_id":      g.cfg.AppID,
		"method":      method,
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"biz_content": string(biz),
	}
	if method == methodPrecreate && g.cfg.NotifyURL != "" {
		params["notify_url"] = g.cfg.NotifyURL
	}
	sign, err := signRSA2(g.signKey, signContent(params, false))
	if err != nil {
		return nil, "", err
	}
	params["sign"] = sign

	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(params).
		Post(g.cfg.GatewayURL)
	if err != nil {
		return nil, "", fmt.Errorf("alipay: %s call failed: %w", method, err)
	}
	traceID := resp.Header().Get("Trace-Id")
	if traceID == "" {
		traceID = resp.Header().Get("trace_id")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, traceID, fmt.Errorf("alipay: %s returned malformed body: %w", method, err)
	}
	key := strings.ReplaceAll(method, ".", "_") + "_response"
	raw, ok := envelope[key]
	if !ok {
		// An "error_response" envelope means the request never reached the
		// business layer (bad app_id, bad signature on our side, ...).
		if raw, ok = envelope["error_response"]; !ok {
			return nil, traceID, fmt.Errorf("alipay: %s response missing %s", method, key)
		}
	}
	var gr gatewayResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, traceID, fmt.Errorf("alipay: %s response unmarshal: %w", method, err)
	}
	return &gr, traceID, nil
}

// mapTradeStatus normalizes the gateway's trade-status enumeration.
// Unrecognized statuses map to PENDING so a new gateway value never strands an
// order in a terminal state it did not earn.
func mapTradeStatus(status string) payment.Status {
	switch status {
	case tradeSuccess, tradeFinished:
		return payment.StatusSuccess
	case tradeClosed:
		return payment.StatusFailed
	case tradeWaitBuyerPay:
		return payment.StatusPending
	default:
		return payment.StatusPending
	}
}

func (g *Gateway) businessError(gr *gatewayResponse) string {
	if gr.SubMsg != "" {
		return gr.SubMsg
	}
	if gr.Msg != "" {
		return gr.Msg
	}
	return "alipay gateway call failed"
}

func transportFailure(orderID string, err error) payment.Result {
	return payment.Result{
		Success:      false,
		OrderID:      orderID,
		Status:       payment.StatusFailed,
		ErrorMessage: err.Error(),
	}
}

// CreateOrder implements gateway.Gateway via alipay.trade.precreate.
func (g *Gateway) CreateOrder(ctx context.Context, order payment.Order) payment.Result {
	log.Printf("alipay: creating order %s amount=%s", order.OrderID, payment.FormatAmount(order.Amount))

	gr, traceID, err := g.exec(ctx, methodPrecreate, map[string]any{
		"out_trade_no": order.OrderID,
		"total_amount": payment.FormatAmount(order.Amount),
		"subject":      order.Subject,
	})
	if err != nil {
		log.Printf("alipay: create order %s failed: %v", order.OrderID, err)
		return transportFailure(order.OrderID, err)
	}

	if gr.Code != codeSuccess {
		return payment.Result{
			Success:      false,
			OrderID:      order.OrderID,
			Status:       payment.StatusFailed,
			ErrorMessage: g.businessError(gr),
			SubCode:      gr.SubCode,
			SubMsg:       gr.SubMsg,
			TraceID:      traceID,
		}
	}

	orderID := gr.OutTradeNo
	if orderID == "" {
		orderID = order.OrderID
	}
	return payment.Result{
		Success: true,
		OrderID: orderID,
		Status:  payment.StatusPending,
		QRCode:  gr.QRCode,
		TraceID: traceID,
	}
}

// QueryOrder implements gateway.Gateway via alipay.trade.query.
func (g *Gateway) QueryOrder(ctx context.Context, orderID string) payment.Result {
	log.Printf("alipay: querying order %s", orderID)

	gr, traceID, err := g.exec(ctx, methodQuery, map[string]any{
		"out_trade_no": orderID,
	})
	if err != nil {
		log.Printf("alipay: query order %s failed: %v", orderID, err)
		return transportFailure(orderID, err)
	}

	// A trade the gateway has not seen yet stays PENDING so the poller keeps
	// probing instead of abandoning the order.
	if gr.Code == codeBusinessFailed && gr.SubCode == subCodeTradeNotExist {
		return payment.Result{
			Success:      false,
			OrderID:      orderID,
			Status:       payment.StatusPending,
			ErrorMessage: gr.SubMsg,
			SubCode:      gr.SubCode,
			SubMsg:       gr.SubMsg,
			TraceID:      traceID,
		}
	}

	if gr.Code != codeSuccess {
		return payment.Result{
			Success:      false,
			OrderID:      orderID,
			Status:       payment.StatusFailed,
			ErrorMessage: g.businessError(gr),
			SubCode:      gr.SubCode,
			SubMsg:       gr.SubMsg,
			TraceID:      traceID,
		}
	}

	return payment.Result{
		Success: true,
		OrderID: orderID,
		TradeNo: gr.TradeNo,
		Status:  mapTradeStatus(gr.TradeStatus),
		TraceID: traceID,
	}
}

// CancelOrder implements gateway.Gateway via alipay.trade.cancel. Cancellation
// always yields a non-payable terminal state regardless of whether the gateway
// closed the trade or refunded it.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) payment.Result {
	log.Printf("alipay: cancelling order %s", orderID)

	gr, traceID, err := g.exec(ctx, methodCancel, map[string]any{
		"out_trade_no": orderID,
	})
	if err != nil {
		log.Printf("alipay: cancel order %s failed: %v", orderID, err)
		return transportFailure(orderID, err)
	}

	if gr.Code != codeSuccess {
		return payment.Result{
			Success:      false,
			OrderID:      orderID,
			Status:       payment.StatusFailed,
			ErrorMessage: g.businessError(gr),
			SubCode:      gr.SubCode,
			SubMsg:       gr.SubMsg,
			TraceID:      traceID,
		}
	}

	return payment.Result{
		Success: true,
		OrderID: orderID,
		Status:  payment.StatusFailed,
		Action:  payment.TradeAction(gr.Action),
		TraceID: traceID,
	}
}

// HandleNotify implements gateway.Gateway. Signature verification is
// unconditional; an unverified payload never influences order status.
func (g *Gateway) HandleNotify(_ context.Context, notifyData map[string]string) (bool, error) {
	sign := notifyData["sign"]
	if sign == "" {
		return false, gateway.ErrInvalidSignature
	}
	if err := verifyRSA2(g.verifyKey, signContent(notifyData, true), sign); err != nil {
		log.Printf("alipay: notify signature verification failed for order %s: %v", notifyData["out_trade_no"], err)
		return false, gateway.ErrInvalidSignature
	}

	switch notifyData["trade_status"] {
	case tradeSuccess, tradeFinished:
		log.Printf("alipay: notify reports payment success for order %s", notifyData["out_trade_no"])
		return true, nil
	default:
		return false, nil
	}
}
