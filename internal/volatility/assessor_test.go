package volatility

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

func flatSeries(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestRankFormula(t *testing.T) {
	hv := flatSeries(0.30, 20)

	// ratio 1.0 -> (1.0 - 0.8) * 100 = 20
	assert.InDelta(t, 20.0, Rank(fptr(0.30), hv), 1e-9)
	// ratio 1.3 -> 50
	assert.InDelta(t, 50.0, Rank(fptr(0.39), hv), 1e-9)
	// ratio 1.8 -> exactly 100
	assert.InDelta(t, 100.0, Rank(fptr(0.54), hv), 1e-9)
}

func TestRankClampsBothEnds(t *testing.T) {
	hv := flatSeries(0.30, 20)

	// ratio 0 -> rank 0
	assert.Equal(t, 0.0, Rank(fptr(0.0), hv))
	// ratio 0.5, below the 0.8 floor -> rank 0
	assert.Equal(t, 0.0, Rank(fptr(0.15), hv))
	// ratio 5 -> rank 100
	assert.Equal(t, 100.0, Rank(fptr(1.50), hv))
}

func TestRankNeutralDefaults(t *testing.T) {
	hv := flatSeries(0.30, 20)

	assert.Equal(t, NeutralRank, Rank(nil, hv), "missing IV")
	assert.Equal(t, NeutralRank, Rank(fptr(0.30), nil), "empty history")
	assert.Equal(t, NeutralRank, Rank(fptr(0.30), []float64{}), "empty history")
	assert.Equal(t, NeutralRank, Rank(fptr(math.NaN()), hv), "NaN IV")
	assert.Equal(t, NeutralRank, Rank(fptr(math.Inf(1)), hv), "infinite IV")
	assert.Equal(t, NeutralRank, Rank(fptr(-0.1), hv), "negative IV")
	assert.Equal(t, NeutralRank, Rank(fptr(0.30), flatSeries(0.0, 20)), "zero baseline")
}

func TestRankUsesLast20Samples(t *testing.T) {
	// Old noise followed by 20 samples at 0.30; only the tail should count.
	hv := append(flatSeries(9.99, 30), flatSeries(0.30, 20)...)
	assert.InDelta(t, 20.0, Rank(fptr(0.30), hv), 1e-9)
}

func TestRankShortSeriesUsesAllSamples(t *testing.T) {
	hv := flatSeries(0.30, 5)
	assert.InDelta(t, 20.0, Rank(fptr(0.30), hv), 1e-9)
}

// stubVolBroker returns canned volatility data for Assessor tests.
type stubVolBroker struct {
	quote    *broker.UnderlyingQuote
	quoteErr error
	hv       []float64
	hvErr    error
}

var _ broker.Broker = (*stubVolBroker)(nil)

func (s *stubVolBroker) GetUnderlying(ctx context.Context, symbol string) (*broker.UnderlyingQuote, error) {
	return s.quote, s.quoteErr
}

func (s *stubVolBroker) GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error) {
	return s.hv, s.hvErr
}

func (s *stubVolBroker) GetOptionQuote(ctx context.Context, occSymbol string) (*broker.OptionQuote, error) {
	return nil, errors.New("not implemented")
}

func (s *stubVolBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	return nil, errors.New("not implemented")
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestAssessHappyPath(t *testing.T) {
	a := NewAssessor(&stubVolBroker{
		quote: &broker.UnderlyingQuote{Symbol: "SNAP", Last: 9.0, ImpliedVol: fptr(0.39)},
		hv:    flatSeries(0.30, 20),
	}, testLogger())

	assert.InDelta(t, 50.0, a.Assess(context.Background(), "SNAP"), 1e-9)
}

func TestAssessDegradesToNeutral(t *testing.T) {
	tests := []struct {
		name string
		stub *stubVolBroker
	}{
		{"quote error", &stubVolBroker{quoteErr: errors.New("feed down")}},
		{"history error", &stubVolBroker{
			quote: &broker.UnderlyingQuote{Symbol: "SNAP", Last: 9.0, ImpliedVol: fptr(0.39)},
			hvErr: errors.New("feed down"),
		}},
		{"no IV in quote", &stubVolBroker{
			quote: &broker.UnderlyingQuote{Symbol: "SNAP", Last: 9.0},
			hv:    flatSeries(0.30, 20),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssessor(tt.stub, testLogger())
			assert.Equal(t, NeutralRank, a.Assess(context.Background(), "SNAP"))
		})
	}
}
