package state

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

const EvaluationKeyPrefix = "rebalance:last:"

func EvaluationKey(symbol string) string {
	return EvaluationKeyPrefix + strings.ToUpper(symbol)
}

// Evaluation is the latest outcome recorded for one asset. It is overwritten
// on every cycle.
type Evaluation struct {
	Symbol        string         `json:"symbol"`
	Asset         string         `json:"asset"`
	Action        string         `json:"action"`
	MarketPrice   string         `json:"market_price,omitempty"`
	FundsAsset    string         `json:"funds_asset,omitempty"`
	FundsAmount   string         `json:"funds_amount,omitempty"`
	Redeemed      bool           `json:"redeemed,omitempty"`
	Placed        int            `json:"placed"`
	Failed        int            `json:"failed"`
	Skips         []SkippedSlice `json:"skips,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	EvaluatedAtMS int64          `json:"evaluated_at_ms"`
}

type SkippedSlice struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func SaveEvaluation(ctx context.Context, store Store, eval Evaluation) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(eval)
	if err != nil {
		return err
	}
	return store.Set(ctx, EvaluationKey(eval.Symbol), string(payload))
}

func LoadEvaluation(ctx context.Context, store Store, symbol string) (Evaluation, bool, error) {
	if store == nil {
		return Evaluation{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, EvaluationKey(symbol))
	if err != nil {
		return Evaluation{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Evaluation{}, false, nil
	}
	var eval Evaluation
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		return Evaluation{}, false, err
	}
	return eval, true, nil
}

// LoadEvaluations returns the latest evaluation of every asset, sorted by
// symbol. Unparseable entries are skipped.
func LoadEvaluations(ctx context.Context, store Store) ([]Evaluation, error) {
	if store == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	items, err := store.List(ctx, EvaluationKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Evaluation, 0, len(items))
	for _, raw := range items {
		var eval Evaluation
		if err := json.Unmarshal([]byte(raw), &eval); err != nil {
			continue
		}
		out = append(out, eval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
