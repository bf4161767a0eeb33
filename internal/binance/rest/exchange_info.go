package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrSymbolNotFound = errors.New("symbol not found")

const codeInvalidSymbol = -1121

// SymbolFilters holds the LOT_SIZE, PRICE_FILTER and NOTIONAL constraints of a
// symbol.
type SymbolFilters struct {
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	MinQty         decimal.Decimal
	StepSize       decimal.Decimal
	TickSize       decimal.Decimal
	MinNotional    decimal.Decimal
	HasMinNotional bool
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"minNotional"`
}

// Filters looks symbol up in the exchange catalog. Unknown symbols return an
// error wrapping ErrSymbolNotFound.
func (c *Client) Filters(ctx context.Context, symbol string) (SymbolFilters, error) {
	symbol = strings.ToUpper(symbol)
	q := url.Values{}
	q.Set("symbol", symbol)
	var out exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", q, false, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
			return SymbolFilters{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
		}
		return SymbolFilters{}, err
	}
	for _, info := range out.Symbols {
		if info.Symbol == symbol {
			return parseFilters(info)
		}
	}
	return SymbolFilters{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}

func parseFilters(info symbolInfo) (SymbolFilters, error) {
	sf := SymbolFilters{Symbol: info.Symbol, BaseAsset: info.BaseAsset, QuoteAsset: info.QuoteAsset}
	var haveLot, havePrice bool
	for _, f := range info.Filters {
		var err error
		switch f.FilterType {
		case "LOT_SIZE":
			haveLot = true
			if sf.MinQty, err = parseDecimal("minQty", f.MinQty); err != nil {
				return SymbolFilters{}, err
			}
			if sf.StepSize, err = parseDecimal("stepSize", f.StepSize); err != nil {
				return SymbolFilters{}, err
			}
		case "PRICE_FILTER":
			havePrice = true
			if sf.TickSize, err = parseDecimal("tickSize", f.TickSize); err != nil {
				return SymbolFilters{}, err
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			// NOTIONAL supersedes the legacy MIN_NOTIONAL filter.
			if sf.HasMinNotional && f.FilterType == "MIN_NOTIONAL" {
				continue
			}
			if f.MinNotional == "" {
				continue
			}
			if sf.MinNotional, err = parseDecimal("minNotional", f.MinNotional); err != nil {
				return SymbolFilters{}, err
			}
			sf.HasMinNotional = sf.MinNotional.IsPositive()
		}
	}
	if !haveLot {
		return SymbolFilters{}, fmt.Errorf("%s: LOT_SIZE filter missing", info.Symbol)
	}
	if !havePrice {
		return SymbolFilters{}, fmt.Errorf("%s: PRICE_FILTER filter missing", info.Symbol)
	}
	return sf, nil
}

func parseDecimal(name, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s parse %q: %w", name, raw, err)
	}
	return v, nil
}
