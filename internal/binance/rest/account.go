package rest

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type accountInfo struct {
	Balances []Balance `json:"balances"`
}

func (c *Client) Balances(ctx context.Context) ([]Balance, error) {
	q := url.Values{}
	q.Set("omitZeroBalances", "true")
	var out accountInfo
	if err := c.get(ctx, "/api/v3/account", q, true, &out); err != nil {
		return nil, err
	}
	return out.Balances, nil
}

// FreeBalance returns the spendable balance of asset, zero when the account
// holds none.
func (c *Client) FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, b := range balances {
		if strings.EqualFold(b.Asset, asset) {
			return b.Free, nil
		}
	}
	return decimal.Zero, nil
}
