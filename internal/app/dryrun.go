package app

import (
	"context"
	"strings"
	"sync"

	"bn-rebalance-bot/internal/binance/rest"
	"bn-rebalance-bot/internal/config"
	"bn-rebalance-bot/internal/exec"
	"bn-rebalance-bot/internal/funding"
	"bn-rebalance-bot/internal/ladder"
	"bn-rebalance-bot/internal/market"
	"bn-rebalance-bot/internal/rebalance"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Evaluation pairs a dry-run outcome with the error the engine reported.
type Evaluation struct {
	Outcome rebalance.Outcome
	Err     error
}

// DryRun evaluates policies with the live engine against current prices and
// balances. Orders are never sent and savings are never redeemed: a
// redemption is simulated by crediting its amount to the liquid balance.
func DryRun(ctx context.Context, cfg *config.Config, policies []rebalance.AssetPolicy, log *zap.Logger) []Evaluation {
	if log == nil {
		log = zap.NewNop()
	}
	creds := rest.Credentials{APIKey: cfg.REST.APIKey, Secret: cfg.REST.APISecret}
	client := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, cfg.REST.RecvWindow, creds, log)
	return dryRun(ctx, client, cfg, policies, log)
}

type dryRunAPI interface {
	market.TickerClient
	accountAPI
	earnAPI
	filtersAPI
}

func dryRun(ctx context.Context, api dryRunAPI, cfg *config.Config, policies []rebalance.AssetPolicy, log *zap.Logger) []Evaluation {
	wallet := newPaperWallet(balancesAdapter{api: api}, savingsAdapter{api: api})
	engine := rebalance.New(
		market.New(api, nil, 0, log),
		newRulesCache(api, 0),
		funding.NewResolver(wallet, wallet, nil, log),
		paperDispatcher{},
		decimal.NewFromFloat(cfg.Engine.MinQuoteBalanceValue()),
		nil,
		log,
	)
	var out []Evaluation
	engine.RunCycle(ctx, policies, func(o rebalance.Outcome, err error) {
		out = append(out, Evaluation{Outcome: o, Err: err})
	})
	return out
}

// paperDispatcher accepts intents without placing them.
type paperDispatcher struct{}

func (paperDispatcher) Dispatch(context.Context, []ladder.Intent) exec.Report {
	return exec.Report{}
}

// paperWallet reads real balances and positions but turns Redeem into a local
// credit on the position's asset.
type paperWallet struct {
	balances funding.Balances
	savings  funding.Savings

	mu       sync.Mutex
	assets   map[string]string
	credited map[string]decimal.Decimal
}

func newPaperWallet(balances funding.Balances, savings funding.Savings) *paperWallet {
	return &paperWallet{
		balances: balances,
		savings:  savings,
		assets:   make(map[string]string),
		credited: make(map[string]decimal.Decimal),
	}
}

func (w *paperWallet) LiquidBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balance, err := w.balances.LiquidBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return balance.Add(w.credited[strings.ToUpper(asset)]), nil
}

func (w *paperWallet) RedeemablePositions(ctx context.Context) ([]funding.Position, error) {
	positions, err := w.savings.RedeemablePositions(ctx)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range positions {
		w.assets[p.PositionID] = strings.ToUpper(p.Asset)
	}
	return positions, nil
}

func (w *paperWallet) Redeem(_ context.Context, positionID string, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	asset := w.assets[positionID]
	w.credited[asset] = w.credited[asset].Add(amount)
	return nil
}
