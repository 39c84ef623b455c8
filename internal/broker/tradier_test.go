package broker

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *TradierAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTradierAPIWithClient("test-key", "VA000000", true, srv.Client()).WithBaseURL(srv.URL)
}

func TestGetOptionQuote(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/quotes", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"quotes":{"quote":{"symbol":"SNAP231103P00008500","bid":0.40,"ask":0.46,"last":0.43}}}`)
	})

	quote, err := api.GetOptionQuote(context.Background(), "SNAP231103P00008500")
	require.NoError(t, err)
	require.NotNil(t, quote.Bid)
	require.NotNil(t, quote.Ask)
	assert.InDelta(t, 0.40, *quote.Bid, 1e-9)
	assert.InDelta(t, 0.46, *quote.Ask, 1e-9)

	mark, ok := quote.MarkPrice()
	require.True(t, ok)
	assert.InDelta(t, 0.43, mark, 1e-9)
}

func TestGetOptionQuoteNullFields(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":{"quote":{"symbol":"SNAP231103P00008500","bid":null,"ask":null,"last":null}}}`)
	})

	quote, err := api.GetOptionQuote(context.Background(), "SNAP231103P00008500")
	require.NoError(t, err)
	assert.Nil(t, quote.Bid)
	assert.Nil(t, quote.Ask)
	_, ok := quote.MarkPrice()
	assert.False(t, ok)
}

func TestPlaceOrderEncodesForm(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts/VA000000/orders", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "option", r.PostForm.Get("class"))
		assert.Equal(t, "SNAP", r.PostForm.Get("symbol"))
		assert.Equal(t, "SNAP231103P00008500", r.PostForm.Get("option_symbol"))
		assert.Equal(t, "sell_to_open", r.PostForm.Get("side"))
		assert.Equal(t, "1", r.PostForm.Get("quantity"))
		assert.Equal(t, "limit", r.PostForm.Get("type"))
		assert.Equal(t, "0.45", r.PostForm.Get("price"))
		fmt.Fprint(w, `{"order":{"id":12345,"status":"ok"}}`)
	})

	resp, err := api.PlaceOrder(context.Background(), OrderRequest{
		OptionSymbol: "SNAP231103P00008500",
		Side:         SideSellToOpen,
		Type:         OrderTypeLimit,
		Quantity:     1,
		LimitPrice:   0.45,
	})
	require.NoError(t, err)
	assert.Equal(t, 12345, resp.Order.ID)
	assert.Equal(t, "ok", resp.Order.Status)
}

func TestPlaceOrderMarketOmitsPrice(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "market", r.PostForm.Get("type"))
		assert.Empty(t, r.PostForm.Get("price"))
		fmt.Fprint(w, `{"order":{"id":7,"status":"ok"}}`)
	})

	_, err := api.PlaceOrder(context.Background(), OrderRequest{
		OptionSymbol: "SNAP231103C00012500",
		Side:         SideBuyToClose,
		Type:         OrderTypeMarket,
		Quantity:     1,
	})
	require.NoError(t, err)
}

func TestPlaceOrderValidation(t *testing.T) {
	api := NewTradierAPI("k", "acct", true)

	_, err := api.PlaceOrder(context.Background(), OrderRequest{
		OptionSymbol: "SNAP231103P00008500",
		Side:         SideSellToOpen,
		Type:         OrderTypeLimit,
		Quantity:     0,
		LimitPrice:   0.45,
	})
	assert.Error(t, err)

	_, err = api.PlaceOrder(context.Background(), OrderRequest{
		OptionSymbol: "SNAP231103P00008500",
		Side:         SideSellToOpen,
		Type:         OrderTypeLimit,
		Quantity:     1,
	})
	assert.Error(t, err, "limit order without price must be rejected")
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"fault":"invalid token"}`)
	})

	_, err := api.GetOptionQuote(context.Background(), "SNAP231103P00008500")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestUnderlyingFromOCC(t *testing.T) {
	sym, err := underlyingFromOCC("PLTR240216P00021500")
	require.NoError(t, err)
	assert.Equal(t, "PLTR", sym)

	sym, err = underlyingFromOCC("F231103C00012500")
	require.NoError(t, err)
	assert.Equal(t, "F", sym)

	_, err = underlyingFromOCC("240216P00021500")
	assert.Error(t, err)
	_, err = underlyingFromOCC("")
	assert.Error(t, err)
}

func TestRealizedVolSeries(t *testing.T) {
	// Too few closes for one window.
	assert.Nil(t, realizedVolSeries([]float64{10, 11, 12}, 20))

	// Constant closes give zero volatility.
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100.0
	}
	series := realizedVolSeries(flat, 20)
	require.NotEmpty(t, series)
	for _, v := range series {
		assert.InDelta(t, 0.0, v, 1e-12)
	}

	// Alternating closes give strictly positive volatility.
	choppy := make([]float64, 30)
	for i := range choppy {
		choppy[i] = 100.0
		if i%2 == 1 {
			choppy[i] = 102.0
		}
	}
	series = realizedVolSeries(choppy, 20)
	require.NotEmpty(t, series)
	for _, v := range series {
		assert.True(t, v > 0 && !math.IsNaN(v))
	}
}

func TestGetHistoricalVolatility(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/history", r.URL.Path)
		fmt.Fprint(w, `{"history":{"day":[`)
		for i := 0; i < 40; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			px := 100.0 + float64(i%3)
			fmt.Fprintf(w, `{"date":"2024-01-%02d","close":%.2f}`, i%28+1, px)
		}
		fmt.Fprint(w, `]}}`)
	})

	series, err := api.GetHistoricalVolatility(context.Background(), "SNAP")
	require.NoError(t, err)
	assert.NotEmpty(t, series)
}
