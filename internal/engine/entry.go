package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/eddiefleurent/stamford_strangler/internal/models"
	"github.com/eddiefleurent/stamford_strangler/internal/orders"
	"github.com/google/uuid"
)

// TryOpen attempts to open a short strangle on ticker. Every guard that
// fails logs the reason and skips the ticker without error; an error is
// returned only when order placement itself fails. The boolean reports
// whether a position was opened.
func (e *Engine) TryOpen(ctx context.Context, ticker string) (bool, error) {
	now := e.now()

	if ok, reason := e.strategy.IsEligible(ticker, now); !ok {
		e.logger.Printf("Skipping %s: %s", ticker, reason)
		return false, nil
	}

	// One open strangle per underlying. Without this, every post-sell-time
	// cycle under the cap would resubmit both legs for a ticker whose
	// position is still on the books.
	if e.ledger.HasSymbol(ticker) {
		e.logger.Printf("Skipping %s: strangle already open", ticker)
		return false, nil
	}

	rank, quote := e.assessor.AssessQuote(ctx, ticker)
	if quote == nil || quote.Last <= 0 {
		e.logger.Printf("Skipping %s: no usable spot price", ticker)
		return false, nil
	}
	spot := quote.Last

	putStrike, callStrike := e.strategy.SelectStrikes(spot, rank)
	expiry := e.strategy.NextExpiry(now)

	put := models.OptionContract{Underlying: ticker, Expiration: expiry, Strike: putStrike, Right: models.RightPut}
	call := models.OptionContract{Underlying: ticker, Expiration: expiry, Strike: callStrike, Right: models.RightCall}

	putAsk, ok := e.askFor(ctx, put)
	if !ok {
		e.logger.Printf("Skipping %s: no ask for put leg %s", ticker, put.OCCSymbol())
		return false, nil
	}
	callAsk, ok := e.askFor(ctx, call)
	if !ok {
		e.logger.Printf("Skipping %s: no ask for call leg %s", ticker, call.OCCSymbol())
		return false, nil
	}

	if !e.strategy.MeetsMinPremium(putAsk, callAsk) {
		e.logger.Printf("Skipping %s: premium too thin (put %.2f, call %.2f)", ticker, putAsk, callAsk)
		return false, nil
	}

	e.logger.Printf("Opening strangle on %s: rank %.1f, spot %.2f, strikes %.1f/%.1f exp %s",
		ticker, rank, spot, putStrike, callStrike, expiry.Format("2006-01-02"))

	result, err := e.placer.OpenStrangle(ctx, put, putAsk, call, callAsk, e.quantity)
	if err != nil {
		var partial *orders.PartialEntryError
		if errors.As(err, &partial) {
			e.logger.Printf("PARTIAL ENTRY on %s: %v", ticker, partial)
		}
		return false, fmt.Errorf("open strangle on %s: %w", ticker, err)
	}

	pos := models.NewPosition(uuid.New().String(), ticker, put, call, now, putAsk+callAsk, rank)
	if err := e.ledger.Add(pos); err != nil {
		return false, fmt.Errorf("record strangle on %s: %w", ticker, err)
	}

	e.logger.Printf("Opened strangle on %s: orders %d/%d, credit %.2f",
		ticker, result.PutOrderID, result.CallOrderID, pos.EntryCredit)
	return true, nil
}

// askFor fetches the quoted ask for a contract. It returns false when the
// quote is unavailable or the venue published no ask.
func (e *Engine) askFor(ctx context.Context, contract models.OptionContract) (float64, bool) {
	quote, err := e.broker.GetOptionQuote(ctx, contract.OCCSymbol())
	if err != nil {
		e.logger.Printf("Quote fetch failed for %s: %v", contract.OCCSymbol(), err)
		return 0, false
	}
	if quote.Ask == nil || *quote.Ask <= 0 {
		return 0, false
	}
	return *quote.Ask, true
}
