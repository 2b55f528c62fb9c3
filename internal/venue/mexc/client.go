// Package mexc implements the MEXC contract API: public tickers as the
// reference-venue quote source and the authenticated order endpoints as the
// live order gateway.
package mexc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkravets/crossarb/internal/crypto"
	"github.com/mkravets/crossarb/internal/domain"
)

// Client is the REST client for the MEXC contract API. It serves public
// market data unauthenticated; order and account endpoints require auth.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	leverage   int
	httpClient *http.Client
}

var (
	_ domain.QuoteSource  = (*Client)(nil)
	_ domain.OrderGateway = (*Client)(nil)
)

// NewClient creates a new MEXC contract REST client.
//
// baseURL is the API root, e.g. "https://contract.mexc.com". auth may be nil
// for a market-data-only client; calling an authenticated endpoint without
// it returns an error.
func NewClient(baseURL string, auth *crypto.HMACAuth, leverage int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		auth:     auth,
		leverage: leverage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the venue for logging.
func (c *Client) Name() string { return "mexc" }

// Ping checks API reachability. Used by the startup connectivity check.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doPublic(ctx, "/api/v1/contract/ping"); err != nil {
		return fmt.Errorf("mexc: ping: %w", err)
	}
	return nil
}

// GetQuotes fetches the full ticker table in one request and picks out the
// requested symbols. Symbols the venue does not list are omitted from the
// result.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	body, err := c.doPublic(ctx, "/api/v1/contract/ticker")
	if err != nil {
		return nil, fmt.Errorf("mexc: get tickers: %w", err)
	}

	var tickers []tickerData
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("mexc: decode tickers: %w", err)
	}

	byContract := make(map[string]tickerData, len(tickers))
	for _, t := range tickers {
		byContract[t.Symbol] = t
	}

	quotes := make(map[string]domain.Quote, len(symbols))
	for _, sym := range symbols {
		t, ok := byContract[contractSymbol(sym)]
		if !ok || t.LastPrice <= 0 {
			continue
		}
		quotes[sym] = domain.Quote{
			Symbol:      sym,
			Price:       t.LastPrice,
			Timestamp:   time.UnixMilli(t.Timestamp),
			SourceCount: 1,
		}
	}
	return quotes, nil
}

// GetQuote fetches a single ticker.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	path := "/api/v1/contract/ticker?symbol=" + url.QueryEscape(contractSymbol(symbol))
	body, err := c.doPublic(ctx, path)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("mexc: get ticker %s: %w", symbol, err)
	}

	var t tickerData
	if err := json.Unmarshal(body, &t); err != nil {
		return domain.Quote{}, fmt.Errorf("mexc: decode ticker: %w", err)
	}
	if t.LastPrice <= 0 {
		return domain.Quote{}, fmt.Errorf("mexc: ticker %s: %w", symbol, domain.ErrQuoteUnavailable)
	}

	return domain.Quote{
		Symbol:      symbol,
		Price:       t.LastPrice,
		Timestamp:   time.UnixMilli(t.Timestamp),
		SourceCount: 1,
	}, nil
}

// Open submits a market order opening a position in the given direction.
// MEXC's market order response carries only the order id; the fill price is
// left zero and the caller falls back to its own reference price.
func (c *Client) Open(ctx context.Context, symbol string, side domain.Side, size float64) (domain.Fill, error) {
	order := orderRequest{
		Symbol:   contractSymbol(symbol),
		Vol:      size,
		Side:     sideOpenLong,
		Type:     orderTypeMarket,
		OpenType: openTypeCross,
		Leverage: c.leverage,
	}
	if side == domain.SideShort {
		order.Side = sideOpenShort
	}

	orderID, err := c.submitOrder(ctx, order)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("mexc: open %s: %w", symbol, err)
	}
	return domain.Fill{OrderID: orderID}, nil
}

// Close flattens the open position for symbol with a market order sized to
// the venue-reported holding.
func (c *Client) Close(ctx context.Context, symbol string) (domain.Fill, error) {
	pos, err := c.openPosition(ctx, symbol)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("mexc: close %s: %w", symbol, err)
	}

	order := orderRequest{
		Symbol:   contractSymbol(symbol),
		Vol:      pos.HoldVol,
		Side:     sideCloseLong,
		Type:     orderTypeMarket,
		OpenType: openTypeCross,
	}
	if pos.PositionType == 2 {
		order.Side = sideCloseShort
	}

	orderID, err := c.submitOrder(ctx, order)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("mexc: close %s: %w", symbol, err)
	}
	return domain.Fill{OrderID: orderID}, nil
}

// Balance reports the USDT futures asset.
func (c *Client) Balance(ctx context.Context) (domain.Balance, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v1/private/account/assets", "", nil)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("mexc: get assets: %w", err)
	}

	var assets []assetData
	if err := json.Unmarshal(body, &assets); err != nil {
		return domain.Balance{}, fmt.Errorf("mexc: decode assets: %w", err)
	}
	for _, a := range assets {
		if a.Currency == "USDT" {
			return domain.Balance{Free: a.AvailableBalance, Total: a.Equity}, nil
		}
	}
	return domain.Balance{}, fmt.Errorf("mexc: no USDT asset in account")
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) submitOrder(ctx context.Context, order orderRequest) (string, error) {
	body, err := c.doSigned(ctx, http.MethodPost, "/api/v1/private/order/submit", "", order)
	if err != nil {
		return "", err
	}

	// The order id arrives as a bare number or string depending on endpoint
	// version.
	var orderID json.Number
	if err := json.Unmarshal(bytes.Trim(body, `"`), &orderID); err != nil {
		return "", fmt.Errorf("decode order id: %w", err)
	}
	return orderID.String(), nil
}

func (c *Client) openPosition(ctx context.Context, symbol string) (positionData, error) {
	query := "symbol=" + contractSymbol(symbol)
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v1/private/position/open_positions", query, nil)
	if err != nil {
		return positionData{}, err
	}

	var positions []positionData
	if err := json.Unmarshal(body, &positions); err != nil {
		return positionData{}, fmt.Errorf("decode positions: %w", err)
	}
	for _, p := range positions {
		if p.HoldVol > 0 {
			return p, nil
		}
	}
	return positionData{}, domain.ErrNotFound
}

// doPublic sends an unauthenticated GET and unwraps the response envelope.
func (c *Client) doPublic(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// doSigned builds, signs, sends, and unwraps an authenticated request. query
// is the raw sorted query string for GET requests; reqBody the JSON payload
// for POST requests. The signature covers whichever of the two is in use.
func (c *Client) doSigned(ctx context.Context, method, path, query string, reqBody any) (json.RawMessage, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("mexc: API credentials not configured")
	}

	var bodyReader io.Reader
	params := query
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		params = string(jsonBody)
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.ContractHeaders(params) {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("api error %d: %s", envelope.Code, envelope.Message)
	}
	return envelope.Data, nil
}

// contractSymbol converts "BTC/USDT" to the venue's "BTC_USDT" form.
func contractSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
