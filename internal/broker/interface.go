// Package broker provides market-data and order clients for the strangle
// engine, including the Tradier API implementation and a circuit-breaker
// wrapper.
package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Broker defines the external collaborator surface the engine consumes:
// price/volatility queries, option quotes, and order submission.
type Broker interface {
	// GetUnderlying returns the spot price and, when available, the
	// implied volatility for a symbol.
	GetUnderlying(ctx context.Context, symbol string) (*UnderlyingQuote, error)

	// GetHistoricalVolatility returns an ordered series of daily
	// historical-volatility closes for a symbol, oldest first.
	GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error)

	// GetOptionQuote returns bid/ask/last for a specific option contract,
	// identified by its OCC symbol. Missing values are nil.
	GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error)

	// PlaceOrder submits a single-leg option order and reports
	// success/failure. No partial-fill semantics are exposed.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
}

// UnderlyingQuote holds the spot price and implied-volatility observation
// for an underlying. ImpliedVol is nil when the feed has no IV for the
// symbol.
type UnderlyingQuote struct {
	Symbol     string
	Last       float64
	ImpliedVol *float64
}

// OptionQuote holds the current market for a single option contract.
// A nil field means the venue published no value this cycle.
type OptionQuote struct {
	Symbol string
	Bid    *float64
	Ask    *float64
	Last   *float64
}

// MarkPrice returns the contract's current price: the bid/ask midpoint when
// both sides are quoted, otherwise the last trade. The second return is
// false when neither is available.
func (q *OptionQuote) MarkPrice() (float64, bool) {
	if q.Bid != nil && q.Ask != nil {
		mid := (*q.Bid + *q.Ask) / 2
		if mid > 0 {
			return mid, true
		}
	}
	if q.Last != nil && *q.Last > 0 {
		return *q.Last, true
	}
	return 0, false
}

// OrderSide identifies the direction of a single-leg option order.
type OrderSide string

const (
	// SideSellToOpen opens a short option leg
	SideSellToOpen OrderSide = "sell_to_open"
	// SideBuyToClose closes a short option leg
	SideBuyToClose OrderSide = "buy_to_close"
)

// OrderType identifies the pricing mode of an order.
type OrderType string

const (
	// OrderTypeLimit submits at a fixed limit price
	OrderTypeLimit OrderType = "limit"
	// OrderTypeMarket submits at the prevailing market price
	OrderTypeMarket OrderType = "market"
)

// OrderRequest describes a single-leg option order.
type OrderRequest struct {
	OptionSymbol string
	Side         OrderSide
	Type         OrderType
	Quantity     int
	// LimitPrice is required for limit orders and ignored for market orders.
	LimitPrice float64
	// Tag is an optional idempotency tag passed through to the venue.
	Tag string
}

// OrderResponse represents the order acknowledgment from the venue.
type OrderResponse struct {
	Order struct {
		ID     int     `json:"id"`
		Status string  `json:"status"`
		Price  float64 `json:"price"`
	} `json:"order"`
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker, logger *log.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, logger, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, logger *log.Logger,
	settings CircuitBreakerSettings) *CircuitBreakerBroker {
	if logger == nil {
		logger = log.Default()
	}
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
		logger:  logger,
	}
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetUnderlying wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetUnderlying(ctx context.Context, symbol string) (*UnderlyingQuote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*UnderlyingQuote, error) {
		return b.GetUnderlying(ctx, symbol)
	})
}

// GetHistoricalVolatility wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]float64, error) {
		return b.GetHistoricalVolatility(ctx, symbol)
	})
}

// GetOptionQuote wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OptionQuote, error) {
		return b.GetOptionQuote(ctx, occSymbol)
	})
}

// PlaceOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OrderResponse, error) {
		return b.PlaceOrder(ctx, req)
	})
}
