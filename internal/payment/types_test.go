package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.00", FormatAmount(1000))
	assert.Equal(t, "0.01", FormatAmount(1))
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "123.45", FormatAmount(12345))
	assert.Equal(t, "-1.05", FormatAmount(-105))
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"10.00", 1000},
		{"10", 1000},
		{"0.01", 1},
		{"0.1", 10},
		{"123.45", 12345},
		{" 7.50 ", 750},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, "amount %q", tc.in)
		assert.Equal(t, tc.want, got, "amount %q", tc.in)
	}
}

func TestParseAmountRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "abc", "1.234", "-5.00", "-0.01", "1.2.3"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, "amount %q should be rejected", in)
	}
}
