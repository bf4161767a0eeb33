package ladder

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrRulesNotFound = errors.New("instrument rules not found")
	ErrRulesLookup   = errors.New("instrument rules lookup failed")
)

// Rules describes the exchange quantization constraints of one trading pair.
// MinNotional only applies when HasMinNotional is set.
type Rules struct {
	MinQuantity    decimal.Decimal
	QuantityStep   decimal.Decimal
	PriceTick      decimal.Decimal
	MinNotional    decimal.Decimal
	HasMinNotional bool
}

func (r Rules) Validate() error {
	if !r.MinQuantity.IsPositive() {
		return fmt.Errorf("min quantity must be > 0, got %s", r.MinQuantity)
	}
	if !r.QuantityStep.IsPositive() {
		return fmt.Errorf("quantity step must be > 0, got %s", r.QuantityStep)
	}
	if !r.PriceTick.IsPositive() {
		return fmt.Errorf("price tick must be > 0, got %s", r.PriceTick)
	}
	if r.HasMinNotional && !r.MinNotional.IsPositive() {
		return fmt.Errorf("min notional must be > 0, got %s", r.MinNotional)
	}
	return nil
}

func (r Rules) belowMinNotional(notional decimal.Decimal) bool {
	return r.HasMinNotional && notional.LessThan(r.MinNotional)
}

// FloorToStep rounds qty down to a whole number of steps.
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}
