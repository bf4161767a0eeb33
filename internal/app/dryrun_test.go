package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"bn-rebalance-bot/internal/binance/rest"
	"bn-rebalance-bot/internal/config"
	"bn-rebalance-bot/internal/funding"
	"bn-rebalance-bot/internal/ladder"
	"bn-rebalance-bot/internal/rebalance"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newDryRunConfig(t *testing.T, fake *fakeBinance, assets []config.AssetConfig) *config.Config {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	cfg := &config.Config{
		REST:   config.RESTConfig{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"},
		Assets: assets,
	}
	applyTestDefaults(cfg)
	return cfg
}

func TestDryRunSimulatesRedemptionWithoutSideEffects(t *testing.T) {
	buy := 100.0
	fake := &fakeBinance{
		price:     "99",
		free:      map[string]string{"USDT": "5"},
		positions: `{"rows":[{"asset":"USDT","productId":"USDT001","totalAmount":"50","canRedeem":true}],"total":1}`,
	}
	cfg := newDryRunConfig(t, fake, []config.AssetConfig{{Asset: "BTC", TargetPrice: 120, BuyPrice: &buy, SplitCount: 2}})

	evals := DryRun(context.Background(), cfg, cfg.Policies(), zap.NewNop())
	if len(evals) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(evals))
	}
	if len(fake.redemptions()) != 0 || len(fake.placed()) != 0 {
		t.Fatalf("dry run touched the account: redeemed=%v orders=%v", fake.redemptions(), fake.placed())
	}
	ev := evals[0]
	if ev.Err != nil {
		t.Fatalf("unexpected error: %v", ev.Err)
	}
	out := ev.Outcome
	if out.Action != rebalance.ActionBuy {
		t.Fatalf("expected buy, got %s", out.Action)
	}
	if !out.Funds.Redeemed || out.Funds.PositionID != "USDT001" || out.Funds.Amount.String() != "55" {
		t.Fatalf("unexpected funds %#v", out.Funds)
	}
	if len(out.Intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(out.Intents))
	}
	if out.Report.Placed() != 0 || out.Report.Failed() != 0 {
		t.Fatalf("expected empty report, got %#v", out.Report)
	}
}

func TestDryRunSkipsBuyWithoutBuyPrice(t *testing.T) {
	fake := &fakeBinance{price: "1", free: map[string]string{"USDT": "500"}, positions: `{"rows":[]}`}
	cfg := newDryRunConfig(t, fake, []config.AssetConfig{{Asset: "BTC", TargetPrice: 100, SplitCount: 3}})

	evals := DryRun(context.Background(), cfg, cfg.Policies(), zap.NewNop())
	if len(evals) != 1 || evals[0].Err != nil {
		t.Fatalf("unexpected evaluations %#v", evals)
	}
	if evals[0].Outcome.Action != rebalance.ActionIdle || len(evals[0].Outcome.Intents) != 0 {
		t.Fatalf("expected idle outcome, got %#v", evals[0].Outcome)
	}
}

func TestDryRunReportsUnknownSymbol(t *testing.T) {
	fake := &fakeBinance{price: "101", free: map[string]string{"DOGE": "10"}, positions: `{"rows":[]}`}
	cfg := newDryRunConfig(t, fake, []config.AssetConfig{{Asset: "DOGE", TargetPrice: 100, SplitCount: 2}})

	evals := DryRun(context.Background(), cfg, cfg.Policies(), zap.NewNop())
	if len(evals) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(evals))
	}
	if !errors.Is(evals[0].Err, ladder.ErrRulesNotFound) || rebalance.KindOf(evals[0].Err) != rebalance.KindTransport {
		t.Fatalf("expected missing rules error, got %v", evals[0].Err)
	}
}

func TestPaperWalletCreditsRedeemedAsset(t *testing.T) {
	w := newPaperWallet(staticBalances{"USDT": "5"}, staticSavings{{Asset: "USDT", PositionID: "P1"}})
	ctx := context.Background()
	if _, err := w.RedeemablePositions(ctx); err != nil {
		t.Fatalf("positions: %v", err)
	}
	if err := w.Redeem(ctx, "P1", decimal.RequireFromString("7.5")); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	usdt, _ := w.LiquidBalance(ctx, "usdt")
	btc, _ := w.LiquidBalance(ctx, "BTC")
	if usdt.String() != "12.5" || !btc.IsZero() {
		t.Fatalf("unexpected balances usdt=%s btc=%s", usdt, btc)
	}
}

type staticBalances map[string]string

func (b staticBalances) LiquidBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	if v, ok := b[strings.ToUpper(asset)]; ok {
		return decimal.RequireFromString(v), nil
	}
	return decimal.Zero, nil
}

type staticSavings []funding.Position

func (s staticSavings) RedeemablePositions(context.Context) ([]funding.Position, error) {
	return s, nil
}

func (s staticSavings) Redeem(context.Context, string, decimal.Decimal) error {
	return errors.New("redeem must not reach the account")
}

var _ dryRunAPI = (*rest.Client)(nil)
