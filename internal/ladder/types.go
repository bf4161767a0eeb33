package ladder

import "github.com/shopspring/decimal"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PricePrecision is the number of fractional digits kept on ladder prices.
const PricePrecision = 8

// Intent is one ladder slice ready for placement. Index is 1-based.
type Intent struct {
	Symbol   string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Index    int
}

func (i Intent) Notional() decimal.Decimal {
	return i.Price.Mul(i.Quantity)
}

type SkipReason string

const (
	SkipBelowMinNotional SkipReason = "below_min_notional"
	SkipBelowMinQuantity SkipReason = "below_min_quantity"
	SkipNonPositivePrice SkipReason = "non_positive_price"
)

// Skip records why a batch (Index 0) or a single slice was left out.
type Skip struct {
	Index    int
	Reason   SkipReason
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Notional decimal.Decimal
}
