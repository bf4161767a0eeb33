package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bn-rebalance-bot/internal/binance/rest"
	"bn-rebalance-bot/internal/exec"
	"bn-rebalance-bot/internal/funding"
	"bn-rebalance-bot/internal/ladder"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type accountAPI interface {
	FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

type earnAPI interface {
	FlexiblePositions(ctx context.Context) ([]rest.FlexiblePosition, error)
	RedeemFlexible(ctx context.Context, productID string, amount decimal.Decimal, fast bool) (rest.RedeemResult, error)
}

type filtersAPI interface {
	Filters(ctx context.Context, symbol string) (rest.SymbolFilters, error)
}

type orderAPI interface {
	PlaceOrder(ctx context.Context, order rest.OrderRequest) (rest.OrderResponse, error)
}

type balancesAdapter struct {
	api accountAPI
}

func (b balancesAdapter) LiquidBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return b.api.FreeBalance(ctx, asset)
}

type savingsAdapter struct {
	api earnAPI
}

func (s savingsAdapter) RedeemablePositions(ctx context.Context) ([]funding.Position, error) {
	rows, err := s.api.FlexiblePositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]funding.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, funding.Position{
			Asset:      strings.ToUpper(row.Asset),
			Amount:     row.TotalAmount,
			CanRedeem:  row.CanRedeem,
			PositionID: row.ProductID,
		})
	}
	return out, nil
}

func (s savingsAdapter) Redeem(ctx context.Context, positionID string, amount decimal.Decimal) error {
	_, err := s.api.RedeemFlexible(ctx, positionID, amount, true)
	return err
}

type cachedRules struct {
	rules     ladder.Rules
	fetchedAt time.Time
}

// rulesCache serves exchange filters as ladder rules, refetching a symbol once
// its entry is older than ttl. A non-positive ttl disables caching.
type rulesCache struct {
	api filtersAPI
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cachedRules
}

func newRulesCache(api filtersAPI, ttl time.Duration) *rulesCache {
	return &rulesCache{api: api, ttl: ttl, now: time.Now, entries: make(map[string]cachedRules)}
}

func (c *rulesCache) InstrumentRules(ctx context.Context, symbol string) (ladder.Rules, error) {
	symbol = strings.ToUpper(symbol)
	now := c.now()
	if c.ttl > 0 {
		c.mu.Lock()
		entry, ok := c.entries[symbol]
		c.mu.Unlock()
		if ok && now.Sub(entry.fetchedAt) < c.ttl {
			return entry.rules, nil
		}
	}
	sf, err := c.api.Filters(ctx, symbol)
	if err != nil {
		if errors.Is(err, rest.ErrSymbolNotFound) {
			return ladder.Rules{}, fmt.Errorf("%w: %s", ladder.ErrRulesNotFound, symbol)
		}
		return ladder.Rules{}, fmt.Errorf("%w: %w", ladder.ErrRulesLookup, err)
	}
	rules := ladder.Rules{
		MinQuantity:    sf.MinQty,
		QuantityStep:   sf.StepSize,
		PriceTick:      sf.TickSize,
		MinNotional:    sf.MinNotional,
		HasMinNotional: sf.HasMinNotional,
	}
	if err := rules.Validate(); err != nil {
		return ladder.Rules{}, fmt.Errorf("%w: %s: %w", ladder.ErrRulesLookup, symbol, err)
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[symbol] = cachedRules{rules: rules, fetchedAt: now}
		c.mu.Unlock()
	}
	return rules, nil
}

type orderPlacer struct {
	api   orderAPI
	newID func() string
}

func newOrderPlacer(api orderAPI) *orderPlacer {
	return &orderPlacer{api: api, newID: uuid.NewString}
}

func (p *orderPlacer) PlaceLimitOrder(ctx context.Context, intent ladder.Intent) (exec.OrderResult, error) {
	clientID := p.newID()
	resp, err := p.api.PlaceOrder(ctx, rest.OrderRequest{
		Symbol:        intent.Symbol,
		Side:          string(intent.Side),
		Type:          rest.OrderTypeLimit,
		TimeInForce:   rest.TimeInForceGTC,
		Price:         intent.Price,
		Quantity:      intent.Quantity,
		ClientOrderID: clientID,
	})
	if err != nil {
		return exec.OrderResult{ClientOrderID: clientID}, err
	}
	if resp.ClientOrderID != "" {
		clientID = resp.ClientOrderID
	}
	return exec.OrderResult{OrderID: resp.ID(), ClientOrderID: clientID, Status: resp.Status}, nil
}
