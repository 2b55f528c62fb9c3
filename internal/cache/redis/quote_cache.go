package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkravets/crossarb/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at key "quote:{venue}:{symbol}" with fields "price", "ts" (Unix
// nanosecond timestamp), and "sources". Entries expire with the TTL given at
// write time, so a stale venue simply stops answering from the cache.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue, symbol string) string {
	return "quote:" + venue + ":" + symbol
}

// SetQuote stores the quote and refreshes the key's TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, venue string, q domain.Quote, ttl time.Duration) error {
	key := quoteKey(venue, q.Symbol)
	fields := map[string]interface{}{
		"price":   strconv.FormatFloat(q.Price, 'f', -1, 64),
		"ts":      strconv.FormatInt(q.Timestamp.UnixNano(), 10),
		"sources": strconv.Itoa(q.SourceCount),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", venue, q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves a cached quote. It returns domain.ErrNotFound when the
// key is missing or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue, symbol string) (domain.Quote, error) {
	key := quoteKey(venue, symbol)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse price %s/%s: %w", venue, symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s/%s: %w", venue, symbol, err)
	}

	sources, _ := strconv.Atoi(vals["sources"])

	return domain.Quote{
		Symbol:      symbol,
		Price:       price,
		Timestamp:   time.Unix(0, tsNano),
		SourceCount: sources,
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
