// Package dex implements the comparison-venue quote source on top of a
// Dexscreener-compatible pair price API. The venue is read-only: no orders
// are ever routed here.
package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
)

// Client fetches pair prices from the aggregator. Symbols are resolved to
// on-chain pair addresses through the configured token map.
type Client struct {
	baseURL    string
	chain      string
	tokenMap   map[string]string // symbol -> pair address
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.QuoteSource = (*Client)(nil)

// NewClient creates a new aggregator client.
//
// baseURL is the API root, e.g. "https://api.dexscreener.com". tokenMap maps
// every tradable symbol to its pair address on chain.
func NewClient(baseURL, chain string, tokenMap map[string]string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		chain:    chain,
		tokenMap: tokenMap,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "dex_client")),
	}
}

// Name identifies the venue for logging.
func (c *Client) Name() string { return "dex" }

// pairData is one entry of the aggregator's pairs response. Prices arrive as
// decimal strings.
type pairData struct {
	PairAddress string `json:"pairAddress"`
	PriceUsd    string `json:"priceUsd"`
	Liquidity   struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
}

type pairsResponse struct {
	Pairs []pairData `json:"pairs"`
}

// GetQuotes fetches each symbol's pair price. A per-symbol failure drops that
// symbol from the result instead of failing the whole call; an error is
// returned only when no symbol could be priced at all.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes := make(map[string]domain.Quote, len(symbols))
	var lastErr error
	for _, sym := range symbols {
		q, err := c.GetQuote(ctx, sym)
		if err != nil {
			lastErr = err
			c.logger.DebugContext(ctx, "symbol fetch failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		quotes[sym] = q
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, fmt.Errorf("dex: get quotes: %w", lastErr)
	}
	return quotes, nil
}

// GetQuote fetches the price for one symbol. When the aggregator returns
// several pools for the pair address the deepest one wins; the pool count is
// reported as the quote's SourceCount.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	addr, ok := c.tokenMap[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("dex: no pair address for %s: %w", symbol, domain.ErrQuoteUnavailable)
	}

	url := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", c.baseURL, c.chain, addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("dex: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("dex: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("dex: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("dex: http %d for %s", resp.StatusCode, symbol)
	}

	var pr pairsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return domain.Quote{}, fmt.Errorf("dex: decode pairs: %w", err)
	}
	if len(pr.Pairs) == 0 {
		return domain.Quote{}, fmt.Errorf("dex: no pools for %s: %w", symbol, domain.ErrQuoteUnavailable)
	}

	best := pr.Pairs[0]
	for _, p := range pr.Pairs[1:] {
		if p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
		}
	}

	price, err := strconv.ParseFloat(best.PriceUsd, 64)
	if err != nil || price <= 0 {
		return domain.Quote{}, fmt.Errorf("dex: bad price %q for %s: %w", best.PriceUsd, symbol, domain.ErrQuoteUnavailable)
	}

	return domain.Quote{
		Symbol:      symbol,
		Price:       price,
		Timestamp:   time.Now(),
		SourceCount: len(pr.Pairs),
	}, nil
}
