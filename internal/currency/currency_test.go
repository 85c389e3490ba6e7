package currency_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/currency"
)

func TestParseAmountDecimalComma(t *testing.T) {
	opts := currency.Options{ThousandsSep: ".", DecimalSep: ",", Decimals: 2}

	amount, err := currency.ParseAmount("1.234,56", opts)
	require.NoError(t, err)
	require.InDelta(t, 1234.56, amount, 0.0001)

	amount, err = currency.ParseAmount("-99,90", opts)
	require.NoError(t, err)
	require.InDelta(t, -99.90, amount, 0.0001)
}

func TestParseAmountDecimalDot(t *testing.T) {
	opts := currency.DefaultOptions()

	amount, err := currency.ParseAmount("1,234.56", opts)
	require.NoError(t, err)
	require.InDelta(t, 1234.56, amount, 0.0001)

	amount, err = currency.ParseAmount("$10.00", opts)
	require.NoError(t, err)
	require.InDelta(t, 10.0, amount, 0.0001)
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	_, err := currency.ParseAmount("", currency.DefaultOptions())
	require.Error(t, err)

	_, err = currency.ParseAmount("abc", currency.DefaultOptions())
	require.Error(t, err)
}

func TestFormatAmountGrouping(t *testing.T) {
	opts := currency.DefaultOptions()
	require.Equal(t, "1,234,567.89", currency.FormatAmount(1234567.89, opts))
	require.Equal(t, "0.00", currency.FormatAmount(0, opts))

	opts = currency.Options{ThousandsSep: " ", DecimalSep: ",", Decimals: 2}
	require.Equal(t, "1 234,50", currency.FormatAmount(1234.5, opts))
}

func TestPricePositions(t *testing.T) {
	cases := []struct {
		position currency.Position
		want     string
	}{
		{currency.PositionLeft, "$10.00"},
		{currency.PositionLeftSpace, "$ 10.00"},
		{currency.PositionRight, "10.00$"},
		{currency.PositionRightSpace, "10.00 $"},
	}
	for _, tc := range cases {
		opts := currency.DefaultOptions()
		opts.Position = tc.position
		require.Equal(t, tc.want, currency.Price(10, "USD", opts), string(tc.position))
	}
}

func TestPriceNegativeOutsideSymbol(t *testing.T) {
	opts := currency.DefaultOptions()
	require.Equal(t, "-$5.50", currency.Price(-5.5, "USD", opts))

	opts.Position = currency.PositionRightSpace
	require.Equal(t, "-5.50 €", currency.Price(-5.5, "EUR", opts))
}

func TestSymbolFallback(t *testing.T) {
	require.Equal(t, "€", currency.Symbol("EUR"))
	require.Equal(t, "£", currency.Symbol("gbp"))
	require.Equal(t, "$", currency.Symbol("XYZ"))
}
