package orders

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/eddiefleurent/stamford_strangler/internal/broker"
	"github.com/eddiefleurent/stamford_strangler/internal/models"
	"github.com/eddiefleurent/stamford_strangler/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBroker records order requests and fails specific legs on demand.
type scriptedBroker struct {
	requests []broker.OrderRequest
	failOn   map[string]error // keyed by OCC symbol
	nextID   int
}

var _ broker.Broker = (*scriptedBroker)(nil)

func (s *scriptedBroker) GetUnderlying(ctx context.Context, symbol string) (*broker.UnderlyingQuote, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedBroker) GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedBroker) GetOptionQuote(ctx context.Context, occSymbol string) (*broker.OptionQuote, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	s.requests = append(s.requests, req)
	if err, ok := s.failOn[req.OptionSymbol]; ok {
		return nil, err
	}
	s.nextID++
	resp := &broker.OrderResponse{}
	resp.Order.ID = s.nextID
	resp.Order.Status = "ok"
	return resp, nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func fastRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Timeout:        time.Second,
	}
}

func newTestPlacer(sb *scriptedBroker) *Placer {
	return NewPlacer(sb, retry.NewClient(sb, testLogger(), fastRetryConfig()), testLogger())
}

func testLegs() (models.OptionContract, models.OptionContract) {
	exp := time.Date(2023, 11, 3, 0, 0, 0, 0, time.UTC)
	put := models.OptionContract{Underlying: "SNAP", Expiration: exp, Strike: 8.5, Right: models.RightPut}
	call := models.OptionContract{Underlying: "SNAP", Expiration: exp, Strike: 9.5, Right: models.RightCall}
	return put, call
}

func TestOpenStrangleBothLegs(t *testing.T) {
	sb := &scriptedBroker{}
	p := newTestPlacer(sb)
	put, call := testLegs()

	res, err := p.OpenStrangle(context.Background(), put, 0.45, call, 0.38, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PutOrderID)
	assert.Equal(t, 2, res.CallOrderID)

	require.Len(t, sb.requests, 2)
	assert.Equal(t, put.OCCSymbol(), sb.requests[0].OptionSymbol, "put leg goes first")
	assert.Equal(t, broker.SideSellToOpen, sb.requests[0].Side)
	assert.Equal(t, broker.OrderTypeLimit, sb.requests[0].Type)
	assert.InDelta(t, 0.45, sb.requests[0].LimitPrice, 1e-9)
	assert.Equal(t, call.OCCSymbol(), sb.requests[1].OptionSymbol)
	assert.InDelta(t, 0.38, sb.requests[1].LimitPrice, 1e-9)
}

func TestOpenStrangleFirstLegRejected(t *testing.T) {
	put, call := testLegs()
	sb := &scriptedBroker{failOn: map[string]error{put.OCCSymbol(): errors.New("rejected")}}
	p := newTestPlacer(sb)

	res, err := p.OpenStrangle(context.Background(), put, 0.45, call, 0.38, 1)
	require.Error(t, err)
	assert.Nil(t, res)

	var partial *PartialEntryError
	assert.False(t, errors.As(err, &partial), "nothing filled, so not a partial entry")
	assert.Len(t, sb.requests, 1, "call leg must not be attempted")
}

func TestOpenStrangleSecondLegRejected(t *testing.T) {
	put, call := testLegs()
	sb := &scriptedBroker{failOn: map[string]error{call.OCCSymbol(): errors.New("rejected")}}
	p := newTestPlacer(sb)

	res, err := p.OpenStrangle(context.Background(), put, 0.45, call, 0.38, 1)
	require.Error(t, err)
	assert.Nil(t, res)

	var partial *PartialEntryError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, put.OCCSymbol(), partial.FilledLeg)
	assert.Equal(t, 1, partial.FilledOrderID)
}

func TestCloseStrangleBothLegs(t *testing.T) {
	sb := &scriptedBroker{}
	p := newTestPlacer(sb)
	put, call := testLegs()
	key := models.PositionKey{PutSymbol: put.OCCSymbol(), CallSymbol: call.OCCSymbol()}

	require.NoError(t, p.CloseStrangle(context.Background(), key, 1))

	require.Len(t, sb.requests, 2)
	for _, req := range sb.requests {
		assert.Equal(t, broker.SideBuyToClose, req.Side)
		assert.Equal(t, broker.OrderTypeMarket, req.Type)
	}
}

func TestCloseStrangleSecondLegFails(t *testing.T) {
	put, call := testLegs()
	sb := &scriptedBroker{failOn: map[string]error{call.OCCSymbol(): errors.New("rejected")}}
	p := newTestPlacer(sb)
	key := models.PositionKey{PutSymbol: put.OCCSymbol(), CallSymbol: call.OCCSymbol()}

	err := p.CloseStrangle(context.Background(), key, 1)
	require.Error(t, err)

	var partial *PartialCloseError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, put.OCCSymbol(), partial.ClosedLeg)
	assert.Equal(t, call.OCCSymbol(), partial.OpenLeg)
}

func TestCloseStrangleRetriesTransientFailure(t *testing.T) {
	put, call := testLegs()
	sb := &scriptedBroker{}
	key := models.PositionKey{PutSymbol: put.OCCSymbol(), CallSymbol: call.OCCSymbol()}

	// Fail the put leg once with a transient error; the retry client should
	// resubmit it before moving on to the call leg.
	fb := &firstCallFails{inner: sb, failSymbol: put.OCCSymbol(), err: errors.New("connection reset")}
	p := NewPlacer(fb, retry.NewClient(fb, testLogger(), fastRetryConfig()), testLogger())

	require.NoError(t, p.CloseStrangle(context.Background(), key, 1))
	assert.Equal(t, 1, fb.failures)
	assert.Len(t, sb.requests, 3, "failed attempt, retried put, call")
}

// firstCallFails fails the first order for failSymbol, then delegates.
type firstCallFails struct {
	inner      *scriptedBroker
	failSymbol string
	err        error
	failures   int
}

var _ broker.Broker = (*firstCallFails)(nil)

func (f *firstCallFails) GetUnderlying(ctx context.Context, symbol string) (*broker.UnderlyingQuote, error) {
	return f.inner.GetUnderlying(ctx, symbol)
}

func (f *firstCallFails) GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error) {
	return f.inner.GetHistoricalVolatility(ctx, symbol)
}

func (f *firstCallFails) GetOptionQuote(ctx context.Context, occSymbol string) (*broker.OptionQuote, error) {
	return f.inner.GetOptionQuote(ctx, occSymbol)
}

func (f *firstCallFails) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	if req.OptionSymbol == f.failSymbol && f.failures == 0 {
		f.failures++
		f.inner.requests = append(f.inner.requests, req)
		return nil, f.err
	}
	return f.inner.PlaceOrder(ctx, req)
}
