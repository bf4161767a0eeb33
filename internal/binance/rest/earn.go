package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// FlexiblePosition is one Simple Earn flexible savings position.
type FlexiblePosition struct {
	Asset       string          `json:"asset"`
	ProductID   string          `json:"productId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CanRedeem   bool            `json:"canRedeem"`
}

type flexiblePositions struct {
	Rows  []FlexiblePosition `json:"rows"`
	Total int                `json:"total"`
}

type RedeemResult struct {
	RedeemID int64 `json:"redeemId"`
	Success  bool  `json:"success"`
}

var ErrRedeemRejected = errors.New("redemption rejected")

const flexiblePageSize = 100

// FlexiblePositions returns every flexible savings position, following pages
// until total rows have been read or a page comes back short.
func (c *Client) FlexiblePositions(ctx context.Context) ([]FlexiblePosition, error) {
	var rows []FlexiblePosition
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("current", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(flexiblePageSize))
		var out flexiblePositions
		if err := c.get(ctx, "/sapi/v1/simple-earn/flexible/position", q, true, &out); err != nil {
			return nil, err
		}
		rows = append(rows, out.Rows...)
		if len(out.Rows) < flexiblePageSize || len(rows) >= out.Total {
			return rows, nil
		}
	}
}

// RedeemFlexible moves amount of a flexible position back to the spot wallet.
// fast selects the FAST redemption type.
func (c *Client) RedeemFlexible(ctx context.Context, productID string, amount decimal.Decimal, fast bool) (RedeemResult, error) {
	q := url.Values{}
	q.Set("productId", productID)
	q.Set("amount", amount.String())
	if fast {
		q.Set("type", "FAST")
	}
	var out RedeemResult
	if err := c.post(ctx, "/sapi/v1/simple-earn/flexible/redeem", q, &out); err != nil {
		return RedeemResult{}, err
	}
	if !out.Success {
		return out, fmt.Errorf("%s: %w", productID, ErrRedeemRejected)
	}
	return out, nil
}
