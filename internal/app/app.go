package app

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"bn-rebalance-bot/internal/binance/rest"
	"bn-rebalance-bot/internal/binance/ws"
	"bn-rebalance-bot/internal/config"
	"bn-rebalance-bot/internal/exec"
	"bn-rebalance-bot/internal/funding"
	"bn-rebalance-bot/internal/market"
	"bn-rebalance-bot/internal/metrics"
	"bn-rebalance-bot/internal/rebalance"
	"bn-rebalance-bot/internal/state"
	"bn-rebalance-bot/internal/state/sqlite"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    state.Store
	prices   *market.Prices
	engine   *rebalance.Engine
	prom     *metrics.Prometheus
	server   *http.Server
	policies []rebalance.AssetPolicy

	lastCycleMS atomic.Int64
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	creds := rest.Credentials{APIKey: cfg.REST.APIKey, Secret: cfg.REST.APISecret}
	if creds.APIKey == "" || creds.Secret == "" {
		return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET are required")
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, cfg.REST.RecvWindow, creds, log)

	var stream market.Stream
	if cfg.WS.EnabledValue() {
		stream = ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	}
	prices := market.New(restClient, stream, cfg.WS.MaxPriceAge, log)

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	resolver := funding.NewResolver(balancesAdapter{api: restClient}, savingsAdapter{api: restClient}, m, log)
	dispatcher := exec.NewDispatcher(newOrderPlacer(restClient), cfg.Engine.MaxParallelOrders, m, log)
	engine := rebalance.New(
		prices,
		newRulesCache(restClient, cfg.Engine.RulesTTLValue()),
		resolver,
		dispatcher,
		decimal.NewFromFloat(cfg.Engine.MinQuoteBalanceValue()),
		m,
		log,
	)

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		prices:   prices,
		engine:   engine,
		prom:     prom,
		policies: cfg.Policies(),
	}
	if prom != nil {
		a.server = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           a.router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.server != nil {
		a.startServer(ctx)
	}
	if err := a.prices.Start(ctx, a.cfg.Symbols()); err != nil {
		a.log.Warn("price stream unavailable, using REST prices", zap.Error(err))
	}
	a.log.Info("rebalancer started",
		zap.Int("assets", len(a.policies)),
		zap.String("quote", a.cfg.Engine.QuoteAsset),
		zap.Duration("poll_interval", a.cfg.Engine.PollInterval),
	)

	a.cycle(ctx)
	ticker := time.NewTicker(a.cfg.Engine.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *App) cycle(ctx context.Context) {
	a.engine.RunCycle(ctx, a.policies, func(out rebalance.Outcome, err error) {
		a.record(ctx, out, err)
	})
	a.lastCycleMS.Store(time.Now().UnixMilli())
}

func (a *App) record(ctx context.Context, out rebalance.Outcome, err error) {
	if err := state.SaveEvaluation(ctx, a.store, toEvaluation(out, err)); err != nil && ctx.Err() == nil {
		a.log.Warn("evaluation snapshot failed", zap.String("symbol", out.Symbol), zap.Error(err))
	}
}

func toEvaluation(out rebalance.Outcome, err error) state.Evaluation {
	eval := state.Evaluation{
		Symbol:        out.Symbol,
		Asset:         out.Asset,
		Action:        string(out.Action),
		FundsAsset:    out.Funds.Asset,
		Redeemed:      out.Funds.Redeemed,
		Placed:        out.Report.Placed(),
		Failed:        out.Report.Failed(),
		EvaluatedAtMS: out.EvaluatedAt.UnixMilli(),
	}
	if !out.MarketPrice.IsZero() {
		eval.MarketPrice = out.MarketPrice.String()
	}
	if out.Funds.Asset != "" {
		eval.FundsAmount = out.Funds.Amount.String()
	}
	for _, s := range out.Skips {
		eval.Skips = append(eval.Skips, state.SkippedSlice{Index: s.Index, Reason: string(s.Reason)})
	}
	if err != nil {
		eval.ErrorKind = rebalance.KindOf(err).String()
		eval.Error = err.Error()
	}
	return eval
}
