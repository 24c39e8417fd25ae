package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMoneyToDecimal(t *testing.T) {
	require.Equal(t, "1234.56", NewMoney(123456).ToDecimal().StringFixed(2))
	require.Equal(t, "0.00", NewMoney(0).ToDecimal().StringFixed(2))
}

func TestFromDecimalTruncates(t *testing.T) {
	d := decimal.RequireFromString("10.019")
	require.Equal(t, int64(1001), FromDecimal(d))
}

func TestMoneyPercent(t *testing.T) {
	require.Equal(t, "25", NewMoney(50).Percent(200).String())
	require.True(t, NewMoney(50).Percent(0).IsZero())
}

func TestMoneyString(t *testing.T) {
	require.Equal(t, "500.00", NewMoney(50000).String())
}
