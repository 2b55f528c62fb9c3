// Package venue provides cross-venue helpers shared by the concrete venue
// clients.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
)

// CachedSource decorates a QuoteSource with a short-TTL quote cache. Cache
// hits skip the upstream call entirely; fetched quotes are written back so
// concurrent consumers (and the next tick inside the TTL window) reuse them.
// The WebSocket feed writes into the same cache, which turns its pushes into
// cache hits here.
type CachedSource struct {
	inner  domain.QuoteSource
	cache  domain.QuoteCache
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.QuoteSource = (*CachedSource)(nil)

// NewCachedSource wraps inner with the given cache. Quotes are cached under
// inner's venue name.
func NewCachedSource(inner domain.QuoteSource, cache domain.QuoteCache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "quote_cache"), slog.String("venue", inner.Name())),
	}
}

// Name identifies the underlying venue.
func (s *CachedSource) Name() string { return s.inner.Name() }

// GetQuotes serves what it can from the cache and fetches only the misses
// upstream. An upstream failure degrades to whatever the cache held; the
// error surfaces only when nothing could be served at all.
func (s *CachedSource) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes := make(map[string]domain.Quote, len(symbols))
	var misses []string
	for _, sym := range symbols {
		q, err := s.cache.GetQuote(ctx, s.inner.Name(), sym)
		if err != nil {
			misses = append(misses, sym)
			continue
		}
		quotes[sym] = q
	}
	if len(misses) == 0 {
		return quotes, nil
	}

	fetched, err := s.inner.GetQuotes(ctx, misses)
	if err != nil {
		if len(quotes) > 0 {
			s.logger.WarnContext(ctx, "upstream fetch failed, serving cached quotes only",
				slog.Int("cached", len(quotes)),
				slog.String("error", err.Error()),
			)
			return quotes, nil
		}
		return nil, fmt.Errorf("venue: get quotes: %w", err)
	}

	for sym, q := range fetched {
		quotes[sym] = q
		if cerr := s.cache.SetQuote(ctx, s.inner.Name(), q, s.ttl); cerr != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("symbol", sym),
				slog.String("error", cerr.Error()),
			)
		}
	}
	return quotes, nil
}

// GetQuote serves one symbol, cache first.
func (s *CachedSource) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if q, err := s.cache.GetQuote(ctx, s.inner.Name(), symbol); err == nil {
		return q, nil
	}

	q, err := s.inner.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if cerr := s.cache.SetQuote(ctx, s.inner.Name(), q, s.ttl); cerr != nil {
		s.logger.WarnContext(ctx, "quote cache write failed",
			slog.String("symbol", symbol),
			slog.String("error", cerr.Error()),
		)
	}
	return q, nil
}
