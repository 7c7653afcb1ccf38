package monitor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/qrpay/internal/monitor"
)

func TestPaymentOrderMonitorAcceptsValidRequest(t *testing.T) {
	cm, err := monitor.NewPaymentOrderMonitor()
	require.NoError(t, err)

	valid, violations, err := cm.Validate([]byte(`{
		"orderId": "ORD-1",
		"amount": "10.00",
		"subject": "Coffee",
		"provider": "ALIPAY"
	}`))
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, violations)
}

func TestPaymentOrderMonitorRejections(t *testing.T) {
	cm, err := monitor.NewPaymentOrderMonitor()
	require.NoError(t, err)

	cases := []struct {
		name string
		body string
	}{
		{"missing amount", `{"subject":"Coffee"}`},
		{"missing subject", `{"amount":"10.00"}`},
		{"amount not a decimal string", `{"amount":"ten","subject":"Coffee"}`},
		{"amount with three decimals", `{"amount":"1.005","subject":"Coffee"}`},
		{"numeric amount", `{"amount":10,"subject":"Coffee"}`},
		{"empty subject", `{"amount":"10.00","subject":""}`},
		{"unknown field", `{"amount":"10.00","subject":"Coffee","extra":true}`},
		{"order id with spaces", `{"orderId":"bad id","amount":"10.00","subject":"Coffee"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			valid, violations, err := cm.Validate([]byte(tc.body))
			require.NoError(t, err)
			assert.False(t, valid)
			assert.NotEmpty(t, violations)
		})
	}
}

func TestContractMonitorFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`), 0o644))

	cm, err := monitor.NewContractMonitorFromFile(path)
	require.NoError(t, err)

	valid, _, err := cm.Validate([]byte(`{"name":"x"}`))
	require.NoError(t, err)
	assert.True(t, valid)

	valid, violations, err := cm.Validate([]byte(`{}`))
	require.NoError(t, err)
	assert.False(t, valid)
	assert.NotEmpty(t, violations)
}

func TestFormatErrors(t *testing.T) {
	assert.Empty(t, monitor.FormatErrors(nil))
	assert.Equal(t, "validation errors: a; b", monitor.FormatErrors([]string{"a", "b"}))
}
