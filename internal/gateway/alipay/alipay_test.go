package alipay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/qrpay/internal/gateway"
	"github.com/yourorg/qrpay/internal/payment"
)

func generateKeyPair(t *testing.T) (privPEM, pubPEM string, priv *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM, priv
}

// newTestGateway wires an adapter against a stub HTTP server that answers
// every call with the given response envelope body.
func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	privPEM, pubPEM, _ := generateKeyPair(t)
	gw, err := NewGateway(Config{
		AppID:      "2021000000000001",
		PrivateKey: privPEM,
		PublicKey:  pubPEM,
		GatewayURL: srv.URL,
	})
	require.NoError(t, err)
	return gw, srv
}

func envelope(method string, body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s_response", strings.ReplaceAll(method, ".", "_"))
		resp := map[string]any{key: body, "sign": "stub"}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Trace-Id", "trace-123")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestNewGatewayRequiresValidKeys(t *testing.T) {
	_, err := NewGateway(Config{AppID: "x", PrivateKey: "not a key", PublicKey: "not a key"})
	assert.Error(t, err)

	_, err = NewGateway(Config{})
	assert.Error(t, err, "missing app id should be rejected")
}

func TestCreateOrder_Success(t *testing.T) {
	gw, _ := newTestGateway(t, envelope("alipay.trade.precreate", map[string]any{
		"code":         "10000",
		"msg":          "Success",
		"out_trade_no": "ORD1",
		"qr_code":      "https://qr.alipay.com/bax0001",
	}))

	res := gw.CreateOrder(context.Background(), payment.Order{
		OrderID: "ORD1", Amount: 1000, Subject: "test goods", Provider: payment.ProviderAlipay,
	})
	assert.True(t, res.Success)
	assert.Equal(t, payment.StatusPending, res.Status)
	assert.Equal(t, "ORD1", res.OrderID)
	assert.Equal(t, "https://qr.alipay.com/bax0001", res.QRCode)
	assert.Equal(t, "trace-123", res.TraceID)
}

func TestCreateOrder_BusinessFailure(t *testing.T) {
	gw, _ := newTestGateway(t, envelope("alipay.trade.precreate", map[string]any{
		"code":     "40004",
		"msg":      "Business Failed",
		"sub_code": "ACQ.INVALID_PARAMETER",
		"sub_msg":  "参数无效",
	}))

	res := gw.CreateOrder(context.Background(), payment.Order{OrderID: "ORD2", Amount: 50, Subject: "x"})
	assert.False(t, res.Success)
	assert.Equal(t, payment.StatusFailed, res.Status)
	assert.Equal(t, "ACQ.INVALID_PARAMETER", res.SubCode)
	assert.Equal(t, "参数无效", res.ErrorMessage)
}

func TestCreateOrder_TransportFailure(t *testing.T) {
	gw, srv := newTestGateway(t, envelope("alipay.trade.precreate", map[string]any{"code": "10000"}))
	srv.Close()

	res := gw.CreateOrder(context.Background(), payment.Order{OrderID: "ORD3", Amount: 100, Subject: "x"})
	assert.False(t, res.Success)
	assert.Equal(t, payment.StatusFailed, res.Status)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestQueryOrder_TradeNotFoundStaysPending(t *testing.T) {
	gw, _ := newTestGateway(t, envelope("alipay.trade.query", map[string]any{
		"code":     "40004",
		"msg":      "Business Failed",
		"sub_code": "ACQ.TRADE_NOT_EXIST",
		"sub_msg":  "交易不存在",
	}))

	res := gw.QueryOrder(context.Background(), "ORD4")
	assert.False(t, res.Success)
	assert.Equal(t, payment.StatusPending, res.Status, "not-yet-visible order must stay pending, never FAILED")
	assert.Equal(t, "ACQ.TRADE_NOT_EXIST", res.SubCode)
}

func TestQueryOrder_TradeStatusMapping(t *testing.T) {
	cases := []struct {
		tradeStatus string
		want        payment.Status
	}{
		{"TRADE_SUCCESS", payment.StatusSuccess},
		{"TRADE_FINISHED", payment.StatusSuccess},
		{"TRADE_CLOSED", payment.StatusFailed},
		{"WAIT_BUYER_PAY", payment.StatusPending},
		{"SOMETHING_NEW", payment.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.tradeStatus, func(t *testing.T) {
			gw, _ := newTestGateway(t, envelope("alipay.trade.query", map[string]any{
				"code":         "10000",
				"trade_no":     "2024123122001",
				"trade_status": tc.tradeStatus,
			}))
			res := gw.QueryOrder(context.Background(), "ORD5")
			assert.True(t, res.Success)
			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, "2024123122001", res.TradeNo)
		})
	}
}

func TestQueryOrder_OtherBusinessFailure(t *testing.T) {
	gw, _ := newTestGateway(t, envelope("alipay.trade.query", map[string]any{
		"code":     "40004",
		"sub_code": "ACQ.SYSTEM_ERROR",
		"sub_msg":  "系统异常",
	}))
	res := gw.QueryOrder(context.Background(), "ORD6")
	assert.False(t, res.Success)
	assert.Equal(t, payment.StatusFailed, res.Status)
}

func TestCancelOrder_AlwaysTerminalFailed(t *testing.T) {
	for _, action := range []string{"close", "refund"} {
		t.Run(action, func(t *testing.T) {
			gw, _ := newTestGateway(t, envelope("alipay.trade.cancel", map[string]any{
				"code":   "10000",
				"action": action,
			}))
			res := gw.CancelOrder(context.Background(), "ORD7")
			assert.True(t, res.Success)
			assert.Equal(t, payment.StatusFailed, res.Status, "cancellation always yields a non-payable state")
			assert.Equal(t, payment.TradeAction(action), res.Action)
		})
	}
}

func signedNotifyPayload(t *testing.T, priv *rsa.PrivateKey, tradeStatus string) map[string]string {
	t.Helper()
	data := map[string]string{
		"out_trade_no": "ORD8",
		"trade_no":     "2024123122002",
		"trade_status": tradeStatus,
		"total_amount": "10.00",
		"sign_type":    "RSA2",
	}
	sig, err := signRSA2(priv, signContent(data, true))
	require.NoError(t, err)
	data["sign"] = sig
	return data
}

func TestHandleNotify_ValidSignature(t *testing.T) {
	privPEM, pubPEM, priv := generateKeyPair(t)
	gw, err := NewGateway(Config{AppID: "app", PrivateKey: privPEM, PublicKey: pubPEM, GatewayURL: "http://unused"})
	require.NoError(t, err)

	ok, err := gw.HandleNotify(context.Background(), signedNotifyPayload(t, priv, "TRADE_SUCCESS"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.HandleNotify(context.Background(), signedNotifyPayload(t, priv, "TRADE_FINISHED"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.HandleNotify(context.Background(), signedNotifyPayload(t, priv, "TRADE_CLOSED"))
	require.NoError(t, err)
	assert.False(t, ok, "non-success trade status is not a success signal")
}

func TestHandleNotify_InvalidSignature(t *testing.T) {
	privPEM, pubPEM, priv := generateKeyPair(t)
	gw, err := NewGateway(Config{AppID: "app", PrivateKey: privPEM, PublicKey: pubPEM, GatewayURL: "http://unused"})
	require.NoError(t, err)

	payload := signedNotifyPayload(t, priv, "TRADE_SUCCESS")
	payload["total_amount"] = "9999.00" // tamper after signing

	ok, err := gw.HandleNotify(context.Background(), payload)
	assert.False(t, ok)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)

	delete(payload, "sign")
	ok, err = gw.HandleNotify(context.Background(), payload)
	assert.False(t, ok)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestParseKeys_BareBase64(t *testing.T) {
	_, _, priv := generateKeyPair(t)

	bare := pemBodyOnly(t, x509.MarshalPKCS1PrivateKey(priv))
	parsed, err := ParsePrivateKey(bare)
	require.NoError(t, err)
	assert.True(t, priv.Equal(parsed))
}

// pemBodyOnly strips the PEM header/footer, keeping the wrapped base64 body
// the way the Alipay console presents keys.
func pemBodyOnly(t *testing.T, der []byte) string {
	t.Helper()
	block := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
	var body []string
	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		body = append(body, line)
	}
	return strings.Join(body, "\n")
}
