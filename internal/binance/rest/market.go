package rest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// TickerPrice returns the latest traded price of symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	var out tickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", q, false, &out); err != nil {
		return decimal.Zero, err
	}
	if !out.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: non-positive ticker price %s", symbol, out.Price)
	}
	return out.Price, nil
}
