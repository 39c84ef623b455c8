package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	productionBaseURL = "https://api.tradier.com/v1"
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"

	defaultHTTPTimeout = 30 * time.Second

	// hvWindow is the lookback for each realized-volatility sample
	hvWindow = 20
	// tradingDaysPerYear annualizes daily return volatility
	tradingDaysPerYear = 252
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierAPI implements Broker against the Tradier brokerage API.
type TradierAPI struct {
	client    *http.Client
	apiKey    string
	accountID string
	baseURL   string
	sandbox   bool
}

// Ensure TradierAPI implements Broker at compile time.
var _ Broker = (*TradierAPI)(nil)

// NewTradierAPI creates a new Tradier client. sandbox selects the paper
// endpoint.
func NewTradierAPI(apiKey, accountID string, sandbox bool) *TradierAPI {
	return NewTradierAPIWithClient(apiKey, accountID, sandbox, nil)
}

// NewTradierAPIWithClient creates a new Tradier client with a custom HTTP
// client (primarily for tests).
func NewTradierAPIWithClient(apiKey, accountID string, sandbox bool, client *http.Client) *TradierAPI {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	baseURL := productionBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}
	return &TradierAPI{
		client:    client,
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   baseURL,
		sandbox:   sandbox,
	}
}

// WithBaseURL overrides the API base URL (for tests against httptest servers).
func (t *TradierAPI) WithBaseURL(baseURL string) *TradierAPI {
	t.baseURL = strings.TrimSuffix(baseURL, "/")
	return t
}

// singleOrArray unmarshals a JSON value that may be a single object or an
// array of objects. Tradier collapses one-element arrays to bare objects.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*s = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []T
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		*s = arr
		return nil
	}
	var single T
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*s = []T{single}
	return nil
}

// quoteItem is the wire shape of a Tradier quote. Bid/ask/last are pointers
// because the API returns null for unquoted contracts.
type quoteItem struct {
	Symbol string   `json:"symbol"`
	Type   string   `json:"type"`
	Last   *float64 `json:"last"`
	Bid    *float64 `json:"bid"`
	Ask    *float64 `json:"ask"`
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

// chainOption is the subset of the Tradier chain payload the client reads.
type chainOption struct {
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"`
	Greeks     *struct {
		MidIV  float64 `json:"mid_iv"`
		SmvVol float64 `json:"smv_vol"`
	} `json:"greeks,omitempty"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type historyResponse struct {
	History struct {
		Day singleOrArray[struct {
			Date  string  `json:"date"`
			Close float64 `json:"close"`
		}] `json:"day"`
	} `json:"history"`
}

// GetUnderlying returns the spot price for symbol plus an implied-volatility
// observation taken from the at-the-money contracts of the nearest
// expiration. ImpliedVol is nil when no chain greeks are published.
func (t *TradierAPI) GetUnderlying(ctx context.Context, symbol string) (*UnderlyingQuote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")

	var resp quotesResponse
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}

	q := resp.Quotes.Quote[0]
	uq := &UnderlyingQuote{Symbol: symbol}
	if q.Last != nil {
		uq.Last = *q.Last
	}

	if iv, err := t.atmImpliedVol(ctx, symbol, uq.Last); err == nil && iv > 0 {
		uq.ImpliedVol = &iv
	}
	return uq, nil
}

// atmImpliedVol averages the mid IV of the put and call closest to spot on
// the nearest listed expiration.
func (t *TradierAPI) atmImpliedVol(ctx context.Context, symbol string, spot float64) (float64, error) {
	if spot <= 0 {
		return 0, fmt.Errorf("no spot price for %s", symbol)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	var exps expirationsResponse
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &exps); err != nil {
		return 0, err
	}
	if len(exps.Expirations.Date) == 0 {
		return 0, fmt.Errorf("no expirations listed for %s", symbol)
	}
	nearest := exps.Expirations.Date[0]

	params = url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", nearest)
	params.Set("greeks", "true")
	var chain chainResponse
	endpoint = t.baseURL + "/markets/options/chains?" + params.Encode()
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &chain); err != nil {
		return 0, err
	}

	sum, n := 0.0, 0
	bestDiff := math.MaxFloat64
	var atStrike float64
	for _, opt := range chain.Options.Option {
		if opt.Greeks == nil || opt.Greeks.MidIV <= 0 {
			continue
		}
		diff := math.Abs(opt.Strike - spot)
		if diff < bestDiff {
			bestDiff = diff
			atStrike = opt.Strike
		}
	}
	for _, opt := range chain.Options.Option {
		if opt.Greeks == nil || opt.Greeks.MidIV <= 0 {
			continue
		}
		if math.Abs(opt.Strike-atStrike) < 1e-4 {
			sum += opt.Greeks.MidIV
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("no greeks published for %s %s", symbol, nearest)
	}
	return sum / float64(n), nil
}

// GetHistoricalVolatility derives a daily historical-volatility series from
// one year of daily closes: for each day, the annualized standard deviation
// of the previous 20 log returns. Tradier publishes no volatility history,
// so the series is synthesized client-side the way IB's
// HISTORICAL_VOLATILITY bars are.
func (t *TradierAPI) GetHistoricalVolatility(ctx context.Context, symbol string) ([]float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", time.Now().AddDate(-1, 0, 0).Format("2006-01-02"))
	params.Set("end", time.Now().Format("2006-01-02"))

	var resp historyResponse
	endpoint := t.baseURL + "/markets/history?" + params.Encode()
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(resp.History.Day))
	for _, day := range resp.History.Day {
		if day.Close > 0 {
			closes = append(closes, day.Close)
		}
	}
	return realizedVolSeries(closes, hvWindow), nil
}

// realizedVolSeries converts daily closes into a rolling annualized
// volatility series. Returns an empty slice when closes are too short for a
// single window.
func realizedVolSeries(closes []float64, window int) []float64 {
	if len(closes) < window+1 {
		return nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	series := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		win := returns[i-window : i]
		mean := 0.0
		for _, r := range win {
			mean += r
		}
		mean /= float64(window)
		variance := 0.0
		for _, r := range win {
			variance += (r - mean) * (r - mean)
		}
		variance /= float64(window - 1)
		series = append(series, math.Sqrt(variance)*math.Sqrt(tradingDaysPerYear))
	}
	return series
}

// GetOptionQuote retrieves bid/ask/last for a single option contract.
func (t *TradierAPI) GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error) {
	params := url.Values{}
	params.Set("symbols", occSymbol)
	params.Set("greeks", "false")

	var resp quotesResponse
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", occSymbol)
	}

	q := resp.Quotes.Quote[0]
	return &OptionQuote{
		Symbol: q.Symbol,
		Bid:    q.Bid,
		Ask:    q.Ask,
		Last:   q.Last,
	}, nil
}

// PlaceOrder submits a single-leg option order.
func (t *TradierAPI) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid order quantity: %d (must be > 0)", req.Quantity)
	}
	if req.Type == OrderTypeLimit && req.LimitPrice <= 0 {
		return nil, fmt.Errorf("invalid limit price: %.2f (must be > 0)", req.LimitPrice)
	}

	underlying, err := underlyingFromOCC(req.OptionSymbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("class", "option")
	params.Set("symbol", underlying)
	params.Set("option_symbol", req.OptionSymbol)
	params.Set("side", string(req.Side))
	params.Set("quantity", fmt.Sprintf("%d", req.Quantity))
	params.Set("type", string(req.Type))
	params.Set("duration", "day")
	if req.Type == OrderTypeLimit {
		params.Set("price", fmt.Sprintf("%.2f", req.LimitPrice))
	}
	if req.Tag != "" {
		params.Set("tag", req.Tag)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, t.accountID)

	var resp OrderResponse
	if err := t.makeRequestCtx(ctx, http.MethodPost, endpoint, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// underlyingFromOCC extracts the underlying symbol from an OCC/OSI option
// code: the leading letters before the 6-digit date.
func underlyingFromOCC(occSymbol string) (string, error) {
	for i, r := range occSymbol {
		if r >= '0' && r <= '9' {
			if i == 0 {
				break
			}
			return occSymbol[:i], nil
		}
	}
	return "", fmt.Errorf("invalid OCC option symbol: %q", occSymbol)
}

// makeRequestCtx makes an HTTP request with context support for
// timeout/cancellation. POST params go in the form body.
func (t *TradierAPI) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == http.MethodPost && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "stamford-strangler/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if readErr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
