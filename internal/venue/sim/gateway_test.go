package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/mkravets/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type priceSource struct {
	prices map[string]float64
}

func (s *priceSource) GetQuotes(_ context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote)
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = domain.Quote{Symbol: sym, Price: p, Timestamp: time.Now(), SourceCount: 1}
		}
	}
	return out, nil
}

func (s *priceSource) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{Symbol: symbol, Price: p, Timestamp: time.Now(), SourceCount: 1}, nil
}

func (s *priceSource) Name() string { return "fake" }

func TestOpenClose_SettlesBalance(t *testing.T) {
	src := &priceSource{prices: map[string]float64{"BTC/USDT": 100}}
	g := NewGateway(src, 1000, 2, testLogger())
	ctx := context.Background()

	fill, err := g.Open(ctx, "BTC/USDT", domain.SideLong, 1)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if fill.Price != 100 {
		t.Errorf("fill price = %v, want 100", fill.Price)
	}

	// 100 notional at 2x leverage holds 50 margin.
	bal, _ := g.Balance(ctx)
	if bal.Free != 950 {
		t.Errorf("Free = %v, want 950 after margin hold", bal.Free)
	}
	if bal.Total != 1000 {
		t.Errorf("Total = %v, want 1000 (margin still counted)", bal.Total)
	}

	src.prices["BTC/USDT"] = 110
	fill, err = g.Close(ctx, "BTC/USDT")
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fill.Price != 110 {
		t.Errorf("close fill price = %v, want 110", fill.Price)
	}

	// Margin released plus (110-100)*1*2 = 20 profit.
	bal, _ = g.Balance(ctx)
	if math.Abs(bal.Free-1020) > 1e-9 {
		t.Errorf("Free = %v, want 1020 after profitable close", bal.Free)
	}
}

func TestOpen_InsufficientBalance(t *testing.T) {
	src := &priceSource{prices: map[string]float64{"BTC/USDT": 100}}
	g := NewGateway(src, 40, 1, testLogger())

	_, err := g.Open(context.Background(), "BTC/USDT", domain.SideLong, 1)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Open() error = %v, want ErrInsufficientBalance", err)
	}
	bal, _ := g.Balance(context.Background())
	if bal.Free != 40 {
		t.Errorf("Free = %v, want untouched 40 after rejected open", bal.Free)
	}
}

func TestOpen_DuplicateSymbol(t *testing.T) {
	src := &priceSource{prices: map[string]float64{"BTC/USDT": 100}}
	g := NewGateway(src, 1000, 1, testLogger())
	ctx := context.Background()

	if _, err := g.Open(ctx, "BTC/USDT", domain.SideLong, 1); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, err := g.Open(ctx, "BTC/USDT", domain.SideLong, 1)
	if !errors.Is(err, domain.ErrPositionExists) {
		t.Errorf("second Open() error = %v, want ErrPositionExists", err)
	}
}

func TestClose_Unknown(t *testing.T) {
	g := NewGateway(&priceSource{}, 1000, 1, testLogger())
	_, err := g.Close(context.Background(), "BTC/USDT")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Close() error = %v, want ErrNotFound", err)
	}
}

func TestClose_NoQuoteSettlesAtEntry(t *testing.T) {
	src := &priceSource{prices: map[string]float64{"BTC/USDT": 100}}
	g := NewGateway(src, 1000, 1, testLogger())
	ctx := context.Background()

	if _, err := g.Open(ctx, "BTC/USDT", domain.SideShort, 1); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	delete(src.prices, "BTC/USDT")

	fill, err := g.Close(ctx, "BTC/USDT")
	if err != nil {
		t.Fatalf("Close() error = %v, want entry-price settlement", err)
	}
	if fill.Price != 100 {
		t.Errorf("fill price = %v, want entry 100", fill.Price)
	}
	bal, _ := g.Balance(ctx)
	if math.Abs(bal.Free-1000) > 1e-9 {
		t.Errorf("Free = %v, want 1000 (flat settlement)", bal.Free)
	}
}
