// Package mock provides a paper broker with synthetic market data so the
// full trading loop can run without brokerage credentials.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1.
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

type symbolState struct {
	price float64
	iv    float64
	hv    []float64
}

// PaperBroker implements broker.Broker with synthetic quotes and
// always-accepted orders.
type PaperBroker struct {
	mu          sync.Mutex
	symbols     map[string]*symbolState
	nextOrderID int
}

// Ensure PaperBroker implements broker.Broker at compile time.
var _ broker.Broker = (*PaperBroker)(nil)

// NewPaperBroker creates a paper broker.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		symbols:     make(map[string]*symbolState),
		nextOrderID: 1000,
	}
}

// state lazily seeds a symbol: price in the low-priced meme-stock range the
// strategy trades, IV somewhat above the 20-day historical baseline.
func (p *PaperBroker) state(symbol string) *symbolState {
	s, ok := p.symbols[symbol]
	if !ok {
		baseHV := 0.35 + secureFloat64()*0.25
		hv := make([]float64, 30)
		for i := range hv {
			hv[i] = baseHV * (0.9 + secureFloat64()*0.2)
		}
		s = &symbolState{
			price: 5.0 + secureFloat64()*25.0,
			iv:    baseHV * (0.9 + secureFloat64()*0.8),
			hv:    hv,
		}
		p.symbols[symbol] = s
	}
	return s
}

// GetUnderlying returns the synthetic spot and IV, with a small random walk
// on each call.
func (p *PaperBroker) GetUnderlying(ctx context.Context, symbol string) (*broker.UnderlyingQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state(symbol)
	s.price += (secureFloat64() - 0.5) * s.price * 0.01
	iv := s.iv
	return &broker.UnderlyingQuote{
		Symbol:     symbol,
		Last:       s.price,
		ImpliedVol: &iv,
	}, nil
}

// GetHistoricalVolatility returns the seeded daily HV series.
func (p *PaperBroker) GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state(symbol)
	out := make([]float64, len(s.hv))
	copy(out, s.hv)
	return out, nil
}

// GetOptionQuote prices a contract with a crude time-value proxy: premium
// decays exponentially with distance from spot, with a two-cent spread.
func (p *PaperBroker) GetOptionQuote(ctx context.Context, occSymbol string) (*broker.OptionQuote, error) {
	underlying, strike, err := parseOCC(occSymbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.state(underlying)
	moneyness := math.Abs(s.price-strike) / s.price
	premium := math.Max(0.05, s.price*s.iv*0.12*math.Exp(-moneyness*8))
	spread := 0.02

	bid := premium - spread/2
	ask := premium + spread/2
	last := premium
	return &broker.OptionQuote{
		Symbol: occSymbol,
		Bid:    &bid,
		Ask:    &ask,
		Last:   &last,
	}, nil
}

// PlaceOrder accepts every order and returns an incrementing order ID.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid order quantity: %d", req.Quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextOrderID++
	resp := &broker.OrderResponse{}
	resp.Order.ID = p.nextOrderID
	resp.Order.Status = "ok"
	resp.Order.Price = req.LimitPrice
	return resp, nil
}

// parseOCC splits an OCC symbol into underlying and strike.
func parseOCC(occSymbol string) (string, float64, error) {
	digitAt := -1
	for i, r := range occSymbol {
		if r >= '0' && r <= '9' {
			digitAt = i
			break
		}
	}
	// underlying + YYMMDD + right + 8-digit strike
	if digitAt <= 0 || len(occSymbol) != digitAt+6+1+8 {
		return "", 0, fmt.Errorf("invalid OCC option symbol: %q", occSymbol)
	}
	right := occSymbol[digitAt+6]
	if right != 'P' && right != 'C' {
		return "", 0, fmt.Errorf("invalid option right in %q", occSymbol)
	}
	strikeRaw := strings.TrimLeft(occSymbol[digitAt+7:], "0")
	if strikeRaw == "" {
		strikeRaw = "0"
	}
	strikeInt, err := strconv.Atoi(strikeRaw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid strike in %q: %w", occSymbol, err)
	}
	return occSymbol[:digitAt], float64(strikeInt) / 1000.0, nil
}
