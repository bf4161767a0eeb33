package ladder

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidLadder = errors.New("invalid ladder request")

// Prices returns the slice prices centred on center. With an even count the
// midpoint sits one slot above the middle, so the extra slice lands below center.
func Prices(center decimal.Decimal, slices int, tick decimal.Decimal) []decimal.Decimal {
	if slices < 1 {
		return nil
	}
	mid := slices / 2
	out := make([]decimal.Decimal, slices)
	for i := 0; i < slices; i++ {
		offset := tick.Mul(decimal.NewFromInt(int64(i - mid)))
		out[i] = center.Add(offset).Round(PricePrecision)
	}
	return out
}

// BuildSell splits available into equal slices around center. The sell side is
// all or nothing: if the batch fails a check no intents are returned and the
// returned Skip explains why.
func BuildSell(symbol string, available, center decimal.Decimal, slices int, rules Rules) ([]Intent, *Skip, error) {
	if err := checkRequest(center, slices, rules); err != nil {
		return nil, nil, err
	}
	total := available.Mul(center)
	if rules.belowMinNotional(total) {
		return nil, &Skip{Reason: SkipBelowMinNotional, Price: center, Quantity: available, Notional: total}, nil
	}
	qty := FloorToStep(available.Div(decimal.NewFromInt(int64(slices))), rules.QuantityStep)
	if qty.LessThan(rules.MinQuantity) {
		return nil, &Skip{Reason: SkipBelowMinQuantity, Price: center, Quantity: qty, Notional: qty.Mul(center)}, nil
	}
	prices := Prices(center, slices, rules.PriceTick)
	if !prices[0].IsPositive() {
		return nil, &Skip{Reason: SkipNonPositivePrice, Price: prices[0], Quantity: qty}, nil
	}
	intents := make([]Intent, 0, slices)
	for i, price := range prices {
		intents = append(intents, Intent{
			Symbol:   symbol,
			Side:     SideSell,
			Price:    price,
			Quantity: qty,
			Index:    i + 1,
		})
	}
	return intents, nil, nil
}

// BuildBuy splits funds into equal notional slices around center and sizes each
// slice at its own price. Slices failing a check are dropped one by one; the
// rest still go out.
func BuildBuy(symbol string, funds, center decimal.Decimal, slices int, rules Rules) ([]Intent, []Skip, error) {
	if err := checkRequest(center, slices, rules); err != nil {
		return nil, nil, err
	}
	sliceFunds := funds.Div(decimal.NewFromInt(int64(slices)))
	var (
		intents []Intent
		skips   []Skip
	)
	for i, price := range Prices(center, slices, rules.PriceTick) {
		if !price.IsPositive() {
			skips = append(skips, Skip{Index: i + 1, Reason: SkipNonPositivePrice, Price: price})
			continue
		}
		qty := FloorToStep(sliceFunds.Div(price), rules.QuantityStep).Round(PricePrecision)
		notional := price.Mul(qty)
		if rules.belowMinNotional(notional) {
			skips = append(skips, Skip{Index: i + 1, Reason: SkipBelowMinNotional, Price: price, Quantity: qty, Notional: notional})
			continue
		}
		if qty.LessThan(rules.MinQuantity) {
			skips = append(skips, Skip{Index: i + 1, Reason: SkipBelowMinQuantity, Price: price, Quantity: qty, Notional: notional})
			continue
		}
		intents = append(intents, Intent{
			Symbol:   symbol,
			Side:     SideBuy,
			Price:    price,
			Quantity: qty,
			Index:    i + 1,
		})
	}
	return intents, skips, nil
}

func checkRequest(center decimal.Decimal, slices int, rules Rules) error {
	if slices < 1 {
		return fmt.Errorf("%w: slice count %d", ErrInvalidLadder, slices)
	}
	if !center.IsPositive() {
		return fmt.Errorf("%w: center price %s", ErrInvalidLadder, center)
	}
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLadder, err)
	}
	return nil
}
