// Package volatility computes the normalized volatility rank used to size
// and time strangle entries.
package volatility

import (
	"context"
	"log"
	"math"
	"os"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/eddiefleurent/stamford_strangler/internal/util"
)

const (
	// NeutralRank is returned whenever implied or historical volatility is
	// unavailable. Downstream eligibility and strike logic always needs a
	// numeric rank, so unavailability degrades to the middle value instead
	// of an error.
	NeutralRank = 50.0

	// baselineSamples is the historical-volatility lookback for the rank
	// baseline.
	baselineSamples = 20

	// rankFloorRatio anchors rank 0: an IV at 0.8x the historical baseline
	// scores zero. Rank 100 lands at 1.8x. A linear proxy for percentile
	// rank, not a true historical percentile.
	rankFloorRatio = 0.8
)

// Rank converts an implied-volatility observation and a historical
// volatility series into a [0,100] rank against the mean of the last 20
// samples. A nil IV, an empty series, or a non-positive baseline yields
// NeutralRank.
func Rank(impliedVol *float64, histVol []float64) float64 {
	if impliedVol == nil || len(histVol) == 0 {
		return NeutralRank
	}
	iv := *impliedVol
	if math.IsNaN(iv) || math.IsInf(iv, 0) || iv < 0 {
		return NeutralRank
	}

	recent := histVol
	if len(recent) > baselineSamples {
		recent = recent[len(recent)-baselineSamples:]
	}
	baseline := util.Mean(recent)
	if baseline <= 0 || math.IsNaN(baseline) || math.IsInf(baseline, 0) {
		return NeutralRank
	}

	r := (iv/baseline - rankFloorRatio) * 100
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// Assessor fetches live volatility observations and derives the rank for an
// underlying.
type Assessor struct {
	broker broker.Broker
	logger *log.Logger
}

// NewAssessor creates an assessor backed by the given broker.
func NewAssessor(b broker.Broker, logger *log.Logger) *Assessor {
	if b == nil {
		panic("volatility.NewAssessor: broker must not be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "volatility: ", log.LstdFlags)
	}
	return &Assessor{broker: b, logger: logger}
}

// Assess returns the volatility rank for symbol. It never fails: any data
// gap or collaborator error degrades to NeutralRank so the entry pipeline
// keeps moving.
func (a *Assessor) Assess(ctx context.Context, symbol string) float64 {
	rank, _ := a.AssessQuote(ctx, symbol)
	return rank
}

// AssessQuote returns the rank together with the underlying quote it was
// derived from, so callers needing the spot price avoid a second fetch. The
// quote is nil when it could not be fetched; the rank is then NeutralRank.
func (a *Assessor) AssessQuote(ctx context.Context, symbol string) (float64, *broker.UnderlyingQuote) {
	quote, err := a.broker.GetUnderlying(ctx, symbol)
	if err != nil {
		a.logger.Printf("Could not fetch quote for %s, using neutral rank: %v", symbol, err)
		return NeutralRank, nil
	}

	histVol, err := a.broker.GetHistoricalVolatility(ctx, symbol)
	if err != nil {
		a.logger.Printf("Could not fetch historical volatility for %s, using neutral rank: %v", symbol, err)
		return NeutralRank, quote
	}

	return Rank(quote.ImpliedVol, histVol), quote
}
