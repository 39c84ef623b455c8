// Package orders stages the two legs of a strangle as individual broker
// orders and surfaces partial fills as typed errors.
package orders

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/eddiefleurent/stamford_strangler/internal/models"
	"github.com/eddiefleurent/stamford_strangler/internal/retry"
)

// PartialEntryError reports a strangle entry where the first leg was
// accepted but the second was rejected. The filled leg is live at the broker
// and needs operator attention.
type PartialEntryError struct {
	FilledLeg     string // OCC symbol of the accepted leg
	FilledOrderID int
	Err           error
}

func (e *PartialEntryError) Error() string {
	return fmt.Sprintf("partial strangle entry: leg %s filled as order %d, second leg failed: %v",
		e.FilledLeg, e.FilledOrderID, e.Err)
}

func (e *PartialEntryError) Unwrap() error { return e.Err }

// PartialCloseError reports a strangle close where only one leg could be
// bought back. The position must stay on the books until both legs are flat.
type PartialCloseError struct {
	ClosedLeg string // OCC symbol of the leg that was bought back
	OpenLeg   string // OCC symbol of the leg still open
	Err       error
}

func (e *PartialCloseError) Error() string {
	return fmt.Sprintf("partial strangle close: leg %s closed, leg %s still open: %v",
		e.ClosedLeg, e.OpenLeg, e.Err)
}

func (e *PartialCloseError) Unwrap() error { return e.Err }

// EntryResult describes the two accepted entry orders.
type EntryResult struct {
	PutOrderID  int
	CallOrderID int
}

// Placer submits strangle entries and exits leg by leg. Entries go straight
// to the broker so a rejection is surfaced immediately; exits go through the
// retry client because closing should survive transient failures.
type Placer struct {
	broker broker.Broker
	retry  *retry.Client
	logger *log.Logger
}

// NewPlacer creates a placer over the given broker.
func NewPlacer(b broker.Broker, retryClient *retry.Client, logger *log.Logger) *Placer {
	if b == nil {
		panic("orders.NewPlacer: broker must not be nil")
	}
	if retryClient == nil {
		panic("orders.NewPlacer: retry client must not be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "orders: ", log.LstdFlags)
	}
	return &Placer{broker: b, retry: retryClient, logger: logger}
}

// OpenStrangle sells the put leg, then the call leg, each as a limit order
// at the quoted ask. If the put is accepted but the call is rejected the
// returned error is a *PartialEntryError and no position should be recorded.
func (p *Placer) OpenStrangle(ctx context.Context, put models.OptionContract, putAsk float64, call models.OptionContract, callAsk float64, quantity int) (*EntryResult, error) {
	putSymbol := put.OCCSymbol()
	callSymbol := call.OCCSymbol()

	putResp, err := p.broker.PlaceOrder(ctx, broker.OrderRequest{
		OptionSymbol: putSymbol,
		Side:         broker.SideSellToOpen,
		Type:         broker.OrderTypeLimit,
		Quantity:     quantity,
		LimitPrice:   putAsk,
		Tag:          "strangle-entry-put",
	})
	if err != nil {
		return nil, fmt.Errorf("sell put %s: %w", putSymbol, err)
	}
	p.logger.Printf("Entry put %s accepted: order %d at %.2f", putSymbol, putResp.Order.ID, putAsk)

	callResp, err := p.broker.PlaceOrder(ctx, broker.OrderRequest{
		OptionSymbol: callSymbol,
		Side:         broker.SideSellToOpen,
		Type:         broker.OrderTypeLimit,
		Quantity:     quantity,
		LimitPrice:   callAsk,
		Tag:          "strangle-entry-call",
	})
	if err != nil {
		return nil, &PartialEntryError{
			FilledLeg:     putSymbol,
			FilledOrderID: putResp.Order.ID,
			Err:           fmt.Errorf("sell call %s: %w", callSymbol, err),
		}
	}
	p.logger.Printf("Entry call %s accepted: order %d at %.2f", callSymbol, callResp.Order.ID, callAsk)

	return &EntryResult{PutOrderID: putResp.Order.ID, CallOrderID: callResp.Order.ID}, nil
}

// CloseStrangle buys back both legs at market through the retry client. If
// only the put can be closed the returned error is a *PartialCloseError so
// the caller keeps the position on the books.
func (p *Placer) CloseStrangle(ctx context.Context, key models.PositionKey, quantity int) error {
	if _, err := p.retry.PlaceOrderWithRetry(ctx, broker.OrderRequest{
		OptionSymbol: key.PutSymbol,
		Side:         broker.SideBuyToClose,
		Type:         broker.OrderTypeMarket,
		Quantity:     quantity,
		Tag:          "strangle-exit-put",
	}); err != nil {
		return fmt.Errorf("close put %s: %w", key.PutSymbol, err)
	}
	p.logger.Printf("Exit put %s accepted", key.PutSymbol)

	if _, err := p.retry.PlaceOrderWithRetry(ctx, broker.OrderRequest{
		OptionSymbol: key.CallSymbol,
		Side:         broker.SideBuyToClose,
		Type:         broker.OrderTypeMarket,
		Quantity:     quantity,
		Tag:          "strangle-exit-call",
	}); err != nil {
		return &PartialCloseError{
			ClosedLeg: key.PutSymbol,
			OpenLeg:   key.CallSymbol,
			Err:       err,
		}
	}
	p.logger.Printf("Exit call %s accepted", key.CallSymbol)

	return nil
}
