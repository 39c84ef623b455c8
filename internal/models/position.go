// Package models defines the core domain types for the strangle engine:
// option contracts, position keys, and open positions.
package models

import (
	"fmt"
	"math"
	"time"
)

// OptionRight identifies whether a contract is a put or a call.
type OptionRight string

const (
	// RightPut represents a put option contract
	RightPut OptionRight = "put"
	// RightCall represents a call option contract
	RightCall OptionRight = "call"
)

// Valid returns true if the OptionRight is one of the defined constants.
func (r OptionRight) Valid() bool {
	return r == RightPut || r == RightCall
}

// OptionContract describes a single-leg option contract.
type OptionContract struct {
	Underlying string      `json:"underlying"`
	Expiration time.Time   `json:"expiration"`
	Strike     float64     `json:"strike"`
	Right      OptionRight `json:"right"`
}

// OCCSymbol returns the OCC/OSI option symbol for the contract:
// SYMBOL + YYMMDD + P/C + 8-digit strike in thousandths of a dollar.
// Example: PLTR 2024-02-16 21.5 put -> PLTR240216P00021500.
func (c OptionContract) OCCSymbol() string {
	right := "C"
	if c.Right == RightPut {
		right = "P"
	}
	// eps guards against strikes like 394.995 encoding as 394994
	const eps = 1e-9
	strikeInt := int(math.Round(c.Strike*1000 + eps))
	return fmt.Sprintf("%s%s%s%08d", c.Underlying, c.Expiration.Format("060102"), right, strikeInt)
}

// PositionKey identifies a strangle by the OCC symbols of its two legs.
// The pair is the position's identity for the lifetime of the ledger entry.
type PositionKey struct {
	PutSymbol  string `json:"put_symbol"`
	CallSymbol string `json:"call_symbol"`
}

// Position represents an open short strangle tracked by the ledger.
// Positions are immutable once created: closing removes the entry rather
// than mutating it in place.
type Position struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Put         OptionContract `json:"put"`
	Call        OptionContract `json:"call"`
	OpenedAt    time.Time      `json:"opened_at"`
	EntryCredit float64        `json:"entry_credit"`
	EntryRank   float64        `json:"entry_rank"`
}

// NewPosition creates a position from its two legs and entry context.
func NewPosition(id, symbol string, put, call OptionContract, openedAt time.Time,
	entryCredit, entryRank float64) *Position {
	return &Position{
		ID:          id,
		Symbol:      symbol,
		Put:         put,
		Call:        call,
		OpenedAt:    openedAt,
		EntryCredit: entryCredit,
		EntryRank:   entryRank,
	}
}

// Key returns the ledger key for the position.
func (p *Position) Key() PositionKey {
	return PositionKey{
		PutSymbol:  p.Put.OCCSymbol(),
		CallSymbol: p.Call.OCCSymbol(),
	}
}

// ProfitFraction returns the fraction of the entry credit recovered if the
// position were closed now at currentValue.
func (p *Position) ProfitFraction(currentValue float64) float64 {
	if p.EntryCredit == 0 {
		return 0
	}
	return (p.EntryCredit - currentValue) / p.EntryCredit
}

// Validate checks the structural invariants of a position before it is
// admitted to the ledger.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position has empty ID")
	}
	if p.Symbol == "" {
		return fmt.Errorf("position %s has empty symbol", p.ID)
	}
	if p.Put.Right != RightPut {
		return fmt.Errorf("position %s: put leg has right %q", p.ID, p.Put.Right)
	}
	if p.Call.Right != RightCall {
		return fmt.Errorf("position %s: call leg has right %q", p.ID, p.Call.Right)
	}
	if p.Put.Underlying != p.Symbol || p.Call.Underlying != p.Symbol {
		return fmt.Errorf("position %s: leg underlyings (%s/%s) do not match symbol %s",
			p.ID, p.Put.Underlying, p.Call.Underlying, p.Symbol)
	}
	if !p.Put.Expiration.Equal(p.Call.Expiration) {
		return fmt.Errorf("position %s: leg expirations differ (%s vs %s)",
			p.ID, p.Put.Expiration.Format("2006-01-02"), p.Call.Expiration.Format("2006-01-02"))
	}
	if p.Put.Strike >= p.Call.Strike {
		return fmt.Errorf("position %s: put strike (%.2f) must be below call strike (%.2f)",
			p.ID, p.Put.Strike, p.Call.Strike)
	}
	if p.EntryCredit <= 0 {
		return fmt.Errorf("position %s: entry credit must be positive (current: %.2f)", p.ID, p.EntryCredit)
	}
	if p.OpenedAt.IsZero() {
		return fmt.Errorf("position %s: OpenedAt must be set", p.ID)
	}
	return nil
}
