package money

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFromMinorNormalizesCurrency(t *testing.T) {
	m, err := FromMinor(100, "usd")
	require.NoError(t, err)
	require.Equal(t, "USD", m.Currency())
	require.Equal(t, int64(100), m.AmountMinor())
}

func TestFromMinorRejectsBadCurrency(t *testing.T) {
	for _, ccy := range []string{"", "US", "USDT"} {
		_, err := FromMinor(100, ccy)
		require.Error(t, err, "currency %q should be rejected", ccy)
		require.True(t, errors.Is(err, ErrInvalidCurrency))
	}
}

func TestFromDecimalHalfUpRoundTrip(t *testing.T) {
	m, err := FromDecimal(12.345, "USD", 2, RoundHalfUp)
	require.NoError(t, err)
	require.Equal(t, int64(1235), m.AmountMinor())
	require.Equal(t, "12.35", m.Format(2))
}

func TestFromDecimalBankers(t *testing.T) {
	tests := []struct {
		amount float64
		digits int
		want   int64
	}{
		{2.5, 0, 2},
		{3.5, 0, 4},
		{-2.5, 0, -2},
		{2.675, 2, 268},
		{2.674, 2, 267},
		{12.345, 2, 1234},
	}
	for _, tt := range tests {
		m, err := FromDecimal(tt.amount, "XXX", tt.digits, RoundBankers)
		require.NoError(t, err)
		require.Equal(t, tt.want, m.AmountMinor(), "amount %v digits %d", tt.amount, tt.digits)
	}
}

func TestFromStringExactBankers(t *testing.T) {
	m, err := FromString("12.345", "USD", 2)
	require.NoError(t, err)
	// Exact decimal input: 1234.5 rounds half to even.
	require.Equal(t, int64(1234), m.AmountMinor())

	_, err = FromString("not-a-number", "USD", 2)
	require.Error(t, err)
}

func TestAddAndSubtract(t *testing.T) {
	a, err := FromMinor(150, "USD")
	require.NoError(t, err)
	b, err := FromMinor(50, "USD")
	require.NoError(t, err)

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, int64(200), sum.AmountMinor())

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	require.Equal(t, int64(100), diff.AmountMinor())

	// Operands are untouched
	require.Equal(t, int64(150), a.AmountMinor())
	require.Equal(t, int64(50), b.AmountMinor())
}

func TestCurrencyMismatch(t *testing.T) {
	usd, err := FromMinor(100, "USD")
	require.NoError(t, err)
	eur, err := FromMinor(100, "EUR")
	require.NoError(t, err)

	_, err = usd.Add(eur)
	require.True(t, errors.Is(err, ErrCurrencyMismatch))

	_, err = usd.Subtract(eur)
	require.True(t, errors.Is(err, ErrCurrencyMismatch))
}

func TestMultiply(t *testing.T) {
	m, err := FromMinor(333, "USD")
	require.NoError(t, err)

	// 333 * 0.5 = 166.5, half-up gives 167, bankers gives 166
	require.Equal(t, int64(167), m.Multiply(0.5, RoundHalfUp).AmountMinor())
	require.Equal(t, int64(166), m.Multiply(0.5, RoundBankers).AmountMinor())
}

func TestDivide(t *testing.T) {
	m, err := FromMinor(100, "USD")
	require.NoError(t, err)

	third, err := m.Divide(3, RoundHalfUp)
	require.NoError(t, err)
	require.Equal(t, int64(33), third.AmountMinor())

	_, err = m.Divide(0, RoundHalfUp)
	require.True(t, errors.Is(err, ErrDivideByZero))
}

func TestRoundIsNoOpForIntegers(t *testing.T) {
	m, err := FromMinor(101, "USD")
	require.NoError(t, err)
	require.Equal(t, int64(101), m.Round(RoundBankers).AmountMinor())
	require.Equal(t, int64(101), m.Round(RoundHalfUp).AmountMinor())
}

func TestFormat(t *testing.T) {
	tests := []struct {
		minor  int64
		digits int
		want   string
	}{
		{1235, 2, "12.35"},
		{5, 2, "0.05"},
		{-1235, 2, "-12.35"},
		{7, 0, "7"},
		{12345, 3, "12.345"},
		{0, 2, "0.00"},
	}
	for _, tt := range tests {
		m, err := FromMinor(tt.minor, "USD")
		require.NoError(t, err)
		require.Equal(t, tt.want, m.Format(tt.digits), "minor %d digits %d", tt.minor, tt.digits)
	}
}

func TestToDecimal(t *testing.T) {
	m, err := FromMinor(1235, "USD")
	require.NoError(t, err)
	require.InDelta(t, 12.35, m.ToDecimal(2), 1e-9)
}

func TestEquals(t *testing.T) {
	a, err := FromMinor(100, "USD")
	require.NoError(t, err)
	b, err := FromMinor(100, "usd")
	require.NoError(t, err)
	c, err := FromMinor(100, "EUR")
	require.NoError(t, err)
	d, err := FromMinor(101, "USD")
	require.NoError(t, err)

	require.True(t, a.Equals(b))
	require.False(t, a.Equals(c))
	require.False(t, a.Equals(d))
}
