package mock

import (
	"context"
	"math"
	"testing"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperBrokerUnderlying(t *testing.T) {
	pb := NewPaperBroker()

	quote, err := pb.GetUnderlying(context.Background(), "SNAP")
	require.NoError(t, err)
	assert.Equal(t, "SNAP", quote.Symbol)
	assert.Greater(t, quote.Last, 0.0)
	require.NotNil(t, quote.ImpliedVol)
	assert.Greater(t, *quote.ImpliedVol, 0.0)

	hv, err := pb.GetHistoricalVolatility(context.Background(), "SNAP")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(hv), 20)
}

func TestPaperBrokerOptionQuote(t *testing.T) {
	pb := NewPaperBroker()

	quote, err := pb.GetUnderlying(context.Background(), "SNAP")
	require.NoError(t, err)

	// ATM contract should quote richer than a far OTM one.
	atm := occFor(t, "SNAP", quote.Last)
	otm := occFor(t, "SNAP", quote.Last*1.5)

	atmQuote, err := pb.GetOptionQuote(context.Background(), atm)
	require.NoError(t, err)
	otmQuote, err := pb.GetOptionQuote(context.Background(), otm)
	require.NoError(t, err)

	atmMark, ok := atmQuote.MarkPrice()
	require.True(t, ok)
	otmMark, ok := otmQuote.MarkPrice()
	require.True(t, ok)
	assert.Greater(t, atmMark, otmMark)

	_, err = pb.GetOptionQuote(context.Background(), "garbage")
	assert.Error(t, err)
}

func TestPaperBrokerPlaceOrder(t *testing.T) {
	pb := NewPaperBroker()

	first, err := pb.PlaceOrder(context.Background(), broker.OrderRequest{
		OptionSymbol: "SNAP231103P00008500",
		Side:         broker.SideSellToOpen,
		Type:         broker.OrderTypeLimit,
		Quantity:     1,
		LimitPrice:   0.45,
	})
	require.NoError(t, err)

	second, err := pb.PlaceOrder(context.Background(), broker.OrderRequest{
		OptionSymbol: "SNAP231103C00012500",
		Side:         broker.SideSellToOpen,
		Type:         broker.OrderTypeLimit,
		Quantity:     1,
		LimitPrice:   0.52,
	})
	require.NoError(t, err)
	assert.Greater(t, second.Order.ID, first.Order.ID)

	_, err = pb.PlaceOrder(context.Background(), broker.OrderRequest{Quantity: 0})
	assert.Error(t, err)
}

func TestParseOCC(t *testing.T) {
	underlying, strike, err := parseOCC("PLTR240216P00021500")
	require.NoError(t, err)
	assert.Equal(t, "PLTR", underlying)
	assert.InDelta(t, 21.5, strike, 1e-9)

	_, _, err = parseOCC("240216P00021500")
	assert.Error(t, err)
	_, _, err = parseOCC("PLTR240216X00021500")
	assert.Error(t, err)
}

func occFor(t *testing.T, symbol string, strike float64) string {
	t.Helper()
	return symbol + "231103P" + padStrike(strike)
}

func padStrike(strike float64) string {
	n := int(math.Round(strike * 1000))
	s := ""
	for i := 0; i < 8; i++ {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	return s
}
