package engine

import (
	"context"

	"github.com/eddiefleurent/stamford_strangler/internal/models"
	"github.com/eddiefleurent/stamford_strangler/internal/strategy"
)

// Sweep evaluates every open position against the exit rules and closes the
// ones that match. Positions whose legs cannot be priced this cycle are left
// untouched, as are positions whose closing orders fail. The keys of the
// positions actually closed are returned, removed from the ledger after the
// sweep completes.
func (e *Engine) Sweep(ctx context.Context) []models.PositionKey {
	var closed []models.PositionKey

	for _, pos := range e.ledger.Positions() {
		key := pos.Key()

		value, ok := e.strangleValue(ctx, key)
		if !ok {
			e.logger.Printf("Holding %s: leg prices unavailable", pos.Symbol)
			continue
		}

		reason, exit := e.strategy.EvaluateExit(pos.EntryRank, pos.EntryCredit, value)
		if !exit {
			continue
		}

		e.logger.Printf("Closing %s (%s): credit %.2f, value %.2f, entry rank %.1f",
			pos.Symbol, reason, pos.EntryCredit, value, pos.EntryRank)

		if reason == strategy.ExitReasonStopLoss {
			e.blacklist.Add(pos.Symbol)
			e.logger.Printf("Blacklisted %s after stop loss", pos.Symbol)
		}

		if err := e.placer.CloseStrangle(ctx, key, e.quantity); err != nil {
			e.logger.Printf("Close failed for %s, keeping position: %v", pos.Symbol, err)
			continue
		}

		closed = append(closed, key)
	}

	for _, key := range closed {
		e.ledger.Remove(key)
	}
	return closed
}

// strangleValue prices both legs of a strangle at their current mark. It
// returns false when either leg has no usable price, so a stale or missing
// quote can never trigger an exit.
func (e *Engine) strangleValue(ctx context.Context, key models.PositionKey) (float64, bool) {
	putQuote, err := e.broker.GetOptionQuote(ctx, key.PutSymbol)
	if err != nil {
		e.logger.Printf("Quote fetch failed for %s: %v", key.PutSymbol, err)
		return 0, false
	}
	callQuote, err := e.broker.GetOptionQuote(ctx, key.CallSymbol)
	if err != nil {
		e.logger.Printf("Quote fetch failed for %s: %v", key.CallSymbol, err)
		return 0, false
	}

	putPrice, ok := putQuote.MarkPrice()
	if !ok {
		return 0, false
	}
	callPrice, ok := callQuote.MarkPrice()
	if !ok {
		return 0, false
	}
	return putPrice + callPrice, true
}
