package rebalance

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AssetPolicy is the per-asset trading configuration. TargetPrice is the sell
// threshold and SellPrice the centre of the sell ladder. BuyPrice is both the
// buy threshold and the centre of the buy ladder.
type AssetPolicy struct {
	Asset       string
	Quote       string
	TargetPrice decimal.Decimal
	SellPrice   decimal.Decimal
	BuyPrice    decimal.Decimal
	HasBuyPrice bool
	SplitCount  int
}

func (p AssetPolicy) Symbol() string {
	return strings.ToUpper(p.Asset + p.Quote)
}

func (p AssetPolicy) buyEnabled() bool {
	return p.HasBuyPrice && p.BuyPrice.IsPositive()
}
