// Package strategy encodes the strangle trading rules: entry eligibility,
// strike selection, expiry choice, and exit evaluation.
package strategy

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/stamford_strangler/internal/earnings"
	"github.com/eddiefleurent/stamford_strangler/internal/ledger"
	"github.com/eddiefleurent/stamford_strangler/internal/util"
)

// Rank tier thresholds and strike multipliers. Wider wings at higher
// volatility leave more room before assignment risk as the expected move
// grows.
const (
	// highVolStrikeRank splits the two strike tiers
	highVolStrikeRank = 70.0
	// highVolExitRank gates the 50% profit target
	highVolExitRank = 50.0
	// lowVolExitRank gates the 25% profit target
	lowVolExitRank = 30.0

	highVolPutMult  = 0.90
	highVolCallMult = 1.10
	lowVolPutMult   = 0.94
	lowVolCallMult  = 1.06

	// strikeTick is the strike rounding granularity
	strikeTick = 0.1
)

// ExitReason describes why a position is being closed.
type ExitReason string

const (
	// ExitReasonNone means no exit rule matched
	ExitReasonNone ExitReason = ""
	// ExitReasonProfitTargetHighVol is the 50% target for high-rank entries
	ExitReasonProfitTargetHighVol ExitReason = "profit target (high volatility)"
	// ExitReasonProfitTargetLowVol is the 25% target for low-rank entries
	ExitReasonProfitTargetLowVol ExitReason = "profit target (low volatility)"
	// ExitReasonStopLoss fires when closing costs a multiple of the credit
	ExitReasonStopLoss ExitReason = "stop loss"
)

// Config holds the tunable strategy parameters.
type Config struct {
	MinPremium          float64 // minimum ask per leg, e.g. 0.30
	ProfitTargetHighVol float64 // e.g. 0.50
	ProfitTargetLowVol  float64 // e.g. 0.25
	StopLossMultiple    float64 // e.g. 2.0
	EarningsWindowDays  int     // forward blackout window, e.g. 5
}

// Strategy evaluates the trading rules against shared engine state.
type Strategy struct {
	cfg       Config
	calendar  *earnings.Calendar
	blacklist *ledger.Blacklist
}

// New creates a strategy with the given parameters and shared state.
func New(cfg Config, calendar *earnings.Calendar, blacklist *ledger.Blacklist) *Strategy {
	if calendar == nil {
		panic("strategy.New: calendar must not be nil")
	}
	if blacklist == nil {
		panic("strategy.New: blacklist must not be nil")
	}
	return &Strategy{cfg: cfg, calendar: calendar, blacklist: blacklist}
}

// Config returns the strategy parameters.
func (s *Strategy) Config() Config {
	return s.cfg
}

// IsEligible reports whether a ticker may be traded this cycle, with a
// human-readable reason when it may not. It rejects blacklisted tickers and
// tickers with an earnings date inside the forward blackout window,
// inclusive of both endpoints. Dates are compared lexically, which is valid
// because the calendar enforces fixed-width YYYY-MM-DD.
func (s *Strategy) IsEligible(ticker string, now time.Time) (bool, string) {
	if s.blacklist.Contains(ticker) {
		return false, "blacklisted after stop loss"
	}

	today := earnings.FormatDate(now)
	horizon := earnings.FormatDate(now.AddDate(0, 0, s.cfg.EarningsWindowDays))
	for _, date := range s.calendar.DatesFor(ticker) {
		if today <= date && date <= horizon {
			return false, fmt.Sprintf("earnings on %s within %d-day window", date, s.cfg.EarningsWindowDays)
		}
	}
	return true, ""
}

// SelectStrikes derives the put and call strikes from the spot price and
// volatility rank. Above the high-volatility threshold the wings widen from
// 6% to 10% on each side. Strikes are rounded to one decimal place.
func (s *Strategy) SelectStrikes(spot, rank float64) (putStrike, callStrike float64) {
	putMult, callMult := lowVolPutMult, lowVolCallMult
	if rank > highVolStrikeRank {
		putMult, callMult = highVolPutMult, highVolCallMult
	}
	putStrike = util.RoundToTick(spot*putMult, strikeTick)
	callStrike = util.RoundToTick(spot*callMult, strikeTick)
	return putStrike, callStrike
}

// NextExpiry returns the next Friday strictly after today. When today is a
// Friday the expiry is the Friday seven days out, never today.
func (s *Strategy) NextExpiry(now time.Time) time.Time {
	daysUntilFriday := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	if daysUntilFriday == 0 {
		daysUntilFriday = 7
	}
	expiry := now.AddDate(0, 0, daysUntilFriday)
	return time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
}

// EvaluateExit applies the exit rules in precedence order and returns the
// first match. Entries with rank in [30,50] have no profit-target rule and
// only ever close via stop loss.
func (s *Strategy) EvaluateExit(entryRank, entryCredit, currentValue float64) (ExitReason, bool) {
	if entryCredit <= 0 {
		return ExitReasonNone, false
	}

	profitFraction := (entryCredit - currentValue) / entryCredit
	switch {
	case entryRank > highVolExitRank && profitFraction >= s.cfg.ProfitTargetHighVol:
		return ExitReasonProfitTargetHighVol, true
	case entryRank < lowVolExitRank && profitFraction >= s.cfg.ProfitTargetLowVol:
		return ExitReasonProfitTargetLowVol, true
	case currentValue >= entryCredit*s.cfg.StopLossMultiple:
		return ExitReasonStopLoss, true
	}
	return ExitReasonNone, false
}

// MeetsMinPremium reports whether both legs quote at or above the minimum
// premium per leg.
func (s *Strategy) MeetsMinPremium(putAsk, callAsk float64) bool {
	return putAsk >= s.cfg.MinPremium && callAsk >= s.cfg.MinPremium
}
