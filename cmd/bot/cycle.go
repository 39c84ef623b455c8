package main

import (
	"context"
	"log"
	"time"

	"github.com/eddiefleurent/stamford_strangler/internal/config"
	"github.com/eddiefleurent/stamford_strangler/internal/ledger"
	"github.com/eddiefleurent/stamford_strangler/internal/models"
)

// trader is the slice of the engine the scheduler drives.
type trader interface {
	TryOpen(ctx context.Context, ticker string) (bool, error)
	Sweep(ctx context.Context) []models.PositionKey
}

// cycle runs one scheduling pass per poll tick: entries only at or after
// the configured sell time and while the strangle cap has room, exits swept
// on every in-hours cycle.
type cycle struct {
	cfg    *config.Config
	trader trader
	ledger *ledger.Ledger
	logger *log.Logger

	// swapped out in tests
	now   func() time.Time
	pause func(ctx context.Context, d time.Duration)
}

func newCycle(cfg *config.Config, t trader, lg *ledger.Ledger, logger *log.Logger) *cycle {
	return &cycle{
		cfg:    cfg,
		trader: t,
		ledger: lg,
		logger: logger,
		now:    time.Now,
		pause:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// run executes one trading cycle: candidate entries first, then the exit
// sweep, both only within market hours.
func (c *cycle) run(ctx context.Context) {
	now := c.now()

	if !c.cfg.IsWithinMarketHours(now) {
		return
	}

	c.tryEntries(ctx, now)

	if closed := c.trader.Sweep(ctx); len(closed) > 0 {
		c.logger.Printf("Cycle closed %d position(s)", len(closed))
	}
}

// tryEntries attempts one entry per ticker, gated on the sell time and a
// single cap check taken before the loop.
func (c *cycle) tryEntries(ctx context.Context, now time.Time) {
	if !c.cfg.IsAtOrAfterSellTime(now) {
		return
	}
	if c.ledger.Len() >= c.cfg.Risk.MaxStrangles {
		c.logger.Printf("Strangle cap reached (%d), skipping entries", c.cfg.Risk.MaxStrangles)
		return
	}

	for i, ticker := range c.cfg.Strategy.Tickers {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			c.pause(ctx, c.cfg.GetEntryPause())
		}
		if _, err := c.trader.TryOpen(ctx, ticker); err != nil {
			c.logger.Printf("Entry attempt on %s failed: %v", ticker, err)
		}
	}
}
