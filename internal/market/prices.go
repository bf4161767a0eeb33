package market

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type TickerClient interface {
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Stream interface {
	Subscribe(ctx context.Context, streams ...string) error
	Run(ctx context.Context, handler func(json.RawMessage)) error
}

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// Prices serves the latest price per symbol from the mini-ticker stream and
// falls back to the REST ticker when the streamed price is missing or stale.
// Only stream updates are cached; every fallback fetches a fresh quote.
type Prices struct {
	rest   TickerClient
	stream Stream
	maxAge time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[string]quote
}

func New(rest TickerClient, stream Stream, maxAge time.Duration, log *zap.Logger) *Prices {
	if log == nil {
		log = zap.NewNop()
	}
	return &Prices{
		rest:   rest,
		stream: stream,
		maxAge: maxAge,
		log:    log,
		now:    time.Now,
		quotes: make(map[string]quote),
	}
}

// Start subscribes the mini-ticker of every symbol and consumes the stream in
// the background until ctx is done. Without a stream it is a no-op.
func (p *Prices) Start(ctx context.Context, symbols []string) error {
	if p.stream == nil || len(symbols) == 0 {
		return nil
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	if err := p.stream.Subscribe(ctx, streams...); err != nil {
		return err
	}
	go func() {
		if err := p.stream.Run(ctx, p.handle); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("price stream stopped", zap.Error(err))
		}
	}()
	return nil
}

func (p *Prices) MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)
	if price, ok := p.Cached(symbol); ok {
		return price, nil
	}
	return p.rest.TickerPrice(ctx, symbol)
}

// Cached returns the stored price of symbol when it is younger than maxAge.
func (p *Prices) Cached(symbol string) (decimal.Decimal, bool) {
	if p.maxAge <= 0 {
		return decimal.Zero, false
	}
	p.mu.RLock()
	q, ok := p.quotes[strings.ToUpper(symbol)]
	p.mu.RUnlock()
	if !ok || p.now().Sub(q.at) > p.maxAge {
		return decimal.Zero, false
	}
	return q.price, true
}

func (p *Prices) Update(symbol string, price decimal.Decimal, at time.Time) {
	if !price.IsPositive() {
		return
	}
	p.mu.Lock()
	p.quotes[strings.ToUpper(symbol)] = quote{price: price, at: at}
	p.mu.Unlock()
}

type miniTicker struct {
	Event  string          `json:"e"`
	Symbol string          `json:"s"`
	Close  decimal.Decimal `json:"c"`
}

func (p *Prices) handle(msg json.RawMessage) {
	var t miniTicker
	if err := json.Unmarshal(msg, &t); err != nil {
		p.log.Debug("ignored stream message", zap.Error(err))
		return
	}
	if t.Event != "24hrMiniTicker" || t.Symbol == "" {
		return
	}
	p.Update(t.Symbol, t.Close, p.now())
}
