package rest

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeLimit = "LIMIT"
	TimeInForceGTC = "GTC"
)

type OrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	TimeInForce   string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderID string
}

type OrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	TransactTime  int64  `json:"transactTime"`
}

func (r OrderResponse) ID() string {
	return strconv.FormatInt(r.OrderID, 10)
}

func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (OrderResponse, error) {
	if order.Symbol == "" || order.Side == "" {
		return OrderResponse{}, errors.New("order symbol and side are required")
	}
	orderType := order.Type
	if orderType == "" {
		orderType = OrderTypeLimit
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(order.Symbol))
	q.Set("side", strings.ToUpper(order.Side))
	q.Set("type", orderType)
	if orderType == OrderTypeLimit {
		tif := order.TimeInForce
		if tif == "" {
			tif = TimeInForceGTC
		}
		q.Set("timeInForce", tif)
		q.Set("price", order.Price.String())
	}
	q.Set("quantity", order.Quantity.String())
	if order.ClientOrderID != "" {
		q.Set("newClientOrderId", order.ClientOrderID)
	}
	q.Set("newOrderRespType", "RESULT")
	var out OrderResponse
	if err := c.post(ctx, "/api/v3/order", q, &out); err != nil {
		return OrderResponse{}, err
	}
	return out, nil
}
