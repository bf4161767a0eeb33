package market

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeTicker struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeTicker) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	_ = ctx
	_ = symbol
	f.calls++
	return f.price, f.err
}

type fakeStream struct {
	streams []string
	msgs    []string
}

func (f *fakeStream) Subscribe(ctx context.Context, streams ...string) error {
	_ = ctx
	f.streams = append(f.streams, streams...)
	return nil
}

func (f *fakeStream) Run(ctx context.Context, handler func(json.RawMessage)) error {
	for _, m := range f.msgs {
		handler(json.RawMessage(m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestMarketPriceFallsBackToREST(t *testing.T) {
	ticker := &fakeTicker{price: decimal.NewFromInt(100)}
	p := New(ticker, nil, 0, zap.NewNop())
	price, err := p.MarketPrice(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100, got %s", price)
	}
	if _, err := p.MarketPrice(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticker.calls != 2 {
		t.Fatalf("expected REST on every call without cache, got %d calls", ticker.calls)
	}
}

func TestMarketPriceUsesFreshStreamPrice(t *testing.T) {
	ticker := &fakeTicker{price: decimal.NewFromInt(100)}
	p := New(ticker, nil, 5*time.Second, zap.NewNop())
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }
	p.handle(json.RawMessage(`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"101.5"}`))

	price, err := p.MarketPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("101.5")) || ticker.calls != 0 {
		t.Fatalf("expected streamed price without REST, got %s (%d calls)", price, ticker.calls)
	}

	now = now.Add(6 * time.Second)
	price, err = p.MarketPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(100)) || ticker.calls != 1 {
		t.Fatalf("expected REST fallback for stale price, got %s (%d calls)", price, ticker.calls)
	}
}

func TestMarketPricePropagatesError(t *testing.T) {
	p := New(&fakeTicker{err: errors.New("http 500")}, nil, time.Second, zap.NewNop())
	if _, err := p.MarketPrice(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	p := New(&fakeTicker{}, nil, time.Minute, zap.NewNop())
	p.handle(json.RawMessage(`{"result":null,"id":1}`))
	p.handle(json.RawMessage(`not json`))
	p.handle(json.RawMessage(`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"0"}`))
	if _, ok := p.Cached("BTCUSDT"); ok {
		t.Fatalf("expected no cached price")
	}
}

func TestStartSubscribesMiniTickers(t *testing.T) {
	stream := &fakeStream{msgs: []string{`{"e":"24hrMiniTicker","s":"ETHUSDT","c":"3000"}`}}
	p := New(&fakeTicker{}, stream, time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx, []string{"BTCUSDT", "ETHUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(stream.streams) != 2 || stream.streams[0] != "btcusdt@miniTicker" {
		t.Fatalf("unexpected streams: %v", stream.streams)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if price, ok := p.Cached("ETHUSDT"); ok {
			if !price.Equal(decimal.NewFromInt(3000)) {
				t.Fatalf("expected 3000, got %s", price)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stream price never cached")
}

func TestMarketPriceDoesNotCacheRESTFallback(t *testing.T) {
	ticker := &fakeTicker{price: decimal.NewFromInt(100)}
	p := New(ticker, nil, 5*time.Second, zap.NewNop())
	for i := 0; i < 3; i++ {
		if _, err := p.MarketPrice(context.Background(), "BTCUSDT"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ticker.calls != 3 {
		t.Fatalf("expected a fresh REST quote per call, got %d calls", ticker.calls)
	}
	if _, ok := p.Cached("BTCUSDT"); ok {
		t.Fatalf("expected REST price to stay out of the stream cache")
	}
}
