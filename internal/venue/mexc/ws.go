package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkravets/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between server messages before the
	// connection is considered dead. The server pushes tickers continuously
	// and answers pings, so silence means a broken link.
	readWait = 60 * time.Second

	// pingPeriod sends protocol-level pings at this interval. Must be less
	// than readWait.
	pingPeriod = 15 * time.Second

	// reconnectDelay is the delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second
)

// wsCommand is the subscribe/ping frame of the contract WebSocket protocol.
type wsCommand struct {
	Method string         `json:"method"`
	Param  map[string]any `json:"param,omitempty"`
}

// wsPush is an inbound frame. Ticker pushes arrive on channel "push.ticker".
type wsPush struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	Ts      int64           `json:"ts"`
}

// TickerStream subscribes to the contract ticker channel for a set of symbols
// and writes every push into the quote cache. It reconnects on disconnect and
// runs until its context is cancelled. The REST quote source reads the cache
// first, so a healthy stream saves one ticker poll per tick.
type TickerStream struct {
	wsURL   string
	symbols []string
	cache   domain.QuoteCache
	ttl     time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerStream creates a stream for the given symbols. Quotes are cached
// under the "mexc" venue key with the given TTL.
func NewTickerStream(wsURL string, symbols []string, cache domain.QuoteCache, ttl time.Duration, logger *slog.Logger) *TickerStream {
	return &TickerStream{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "mexc_ws")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes, and pumps ticker pushes into the cache until ctx
// is cancelled. Reconnects with a fixed delay on disconnect.
func (s *TickerStream) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		s.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("ticker stream disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// Close stops the stream.
func (s *TickerStream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *TickerStream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("mexc/ws: connect: %w", err)
	}
	defer conn.Close()

	for _, sym := range s.symbols {
		cmd := wsCommand{
			Method: "sub.ticker",
			Param:  map[string]any{"symbol": contractSymbol(sym)},
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(cmd); err != nil {
			return fmt.Errorf("mexc/ws: subscribe %s: %w", sym, err)
		}
	}
	s.logger.Info("ticker stream subscribed", slog.Int("symbols", len(s.symbols)))

	// The protocol uses application-level ping frames.
	go s.pingLoop(ctx, conn)

	slashBySymbol := make(map[string]string, len(s.symbols))
	for _, sym := range s.symbols {
		slashBySymbol[contractSymbol(sym)] = sym
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		var push wsPush
		if err := conn.ReadJSON(&push); err != nil {
			return fmt.Errorf("mexc/ws: read: %w", err)
		}
		if push.Channel != "push.ticker" {
			continue
		}

		var t tickerData
		if err := json.Unmarshal(push.Data, &t); err != nil {
			s.logger.Warn("bad ticker push", slog.String("error", err.Error()))
			continue
		}
		sym, ok := slashBySymbol[t.Symbol]
		if !ok || t.LastPrice <= 0 {
			continue
		}

		q := domain.Quote{
			Symbol:      sym,
			Price:       t.LastPrice,
			Timestamp:   time.UnixMilli(t.Timestamp),
			SourceCount: 1,
		}
		if err := s.cache.SetQuote(ctx, "mexc", q, s.ttl); err != nil {
			s.logger.Warn("quote cache write failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *TickerStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsCommand{Method: "ping"}); err != nil {
				return
			}
		}
	}
}
