// Package engine drives the strangle lifecycle: evaluating candidates for
// entry each cycle and sweeping open positions for exits.
package engine

import (
	"log"
	"os"
	"time"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/eddiefleurent/stamford_strangler/internal/ledger"
	"github.com/eddiefleurent/stamford_strangler/internal/orders"
	"github.com/eddiefleurent/stamford_strangler/internal/strategy"
	"github.com/eddiefleurent/stamford_strangler/internal/volatility"
)

// Engine coordinates the broker, strategy, and ledger for one trading loop.
// It is not safe for concurrent use; the scheduler calls it from a single
// goroutine.
type Engine struct {
	broker    broker.Broker
	assessor  *volatility.Assessor
	strategy  *strategy.Strategy
	ledger    *ledger.Ledger
	blacklist *ledger.Blacklist
	placer    *orders.Placer
	logger    *log.Logger
	quantity  int

	// now is swapped out in tests
	now func() time.Time
}

// Params bundles the engine's collaborators.
type Params struct {
	Broker    broker.Broker
	Assessor  *volatility.Assessor
	Strategy  *strategy.Strategy
	Ledger    *ledger.Ledger
	Blacklist *ledger.Blacklist
	Placer    *orders.Placer
	Logger    *log.Logger
	Quantity  int
}

// New creates an engine from its collaborators.
func New(p Params) *Engine {
	if p.Broker == nil || p.Assessor == nil || p.Strategy == nil ||
		p.Ledger == nil || p.Blacklist == nil || p.Placer == nil {
		panic("engine.New: all collaborators must be non-nil")
	}
	if p.Logger == nil {
		p.Logger = log.New(os.Stderr, "engine: ", log.LstdFlags)
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	return &Engine{
		broker:    p.Broker,
		assessor:  p.Assessor,
		strategy:  p.Strategy,
		ledger:    p.Ledger,
		blacklist: p.Blacklist,
		placer:    p.Placer,
		logger:    p.Logger,
		quantity:  p.Quantity,
		now:       time.Now,
	}
}
