// Package ledger holds the engine's in-memory state: the registry of open
// positions and the blacklist of stopped-out tickers.
//
// Both structures are guarded by RWMutex so all methods are safe for
// concurrent use, although the trading cycle itself is single-threaded.
// Nothing here survives a process restart.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eddiefleurent/stamford_strangler/internal/models"
)

// Ledger is the registry of open positions keyed by their two option legs.
// A position exists here from the moment both entry legs are submitted
// until both closing legs are submitted; it is removed, never updated.
type Ledger struct {
	mu        sync.RWMutex
	positions map[models.PositionKey]models.Position
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[models.PositionKey]models.Position)}
}

// Add inserts a new position. It rejects invalid positions and duplicate
// keys.
func (l *Ledger) Add(pos *models.Position) error {
	if pos == nil {
		return fmt.Errorf("ledger: nil position")
	}
	if err := pos.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := pos.Key()
	if _, exists := l.positions[key]; exists {
		return fmt.Errorf("ledger: position already exists for legs %s/%s", key.PutSymbol, key.CallSymbol)
	}
	l.positions[key] = *pos
	return nil
}

// Remove deletes the position with the given key, reporting whether it was
// present.
func (l *Ledger) Remove(key models.PositionKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[key]; !exists {
		return false
	}
	delete(l.positions, key)
	return true
}

// Get returns a copy of the position with the given key.
func (l *Ledger) Get(key models.PositionKey) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[key]
	return pos, ok
}

// Positions returns a snapshot of all open positions, ordered by leg key
// for deterministic iteration.
func (l *Ledger) Positions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		if ki.PutSymbol != kj.PutSymbol {
			return ki.PutSymbol < kj.PutSymbol
		}
		return ki.CallSymbol < kj.CallSymbol
	})
	return out
}

// HasSymbol reports whether any open position is on the given underlying.
func (l *Ledger) HasSymbol(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, pos := range l.positions {
		if pos.Symbol == symbol {
			return true
		}
	}
	return false
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Blacklist is the set of tickers barred from new entries. It grows via
// stop-loss exits and never shrinks during a run.
type Blacklist struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{symbols: make(map[string]struct{})}
}

// Add bars a ticker from new entries.
func (b *Blacklist) Add(ticker string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.symbols[ticker] = struct{}{}
}

// Contains reports whether a ticker is barred.
func (b *Blacklist) Contains(ticker string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.symbols[ticker]
	return ok
}

// Symbols returns the barred tickers in sorted order.
func (b *Blacklist) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of barred tickers.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.symbols)
}
