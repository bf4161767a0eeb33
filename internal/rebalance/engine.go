package rebalance

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"bn-rebalance-bot/internal/exec"
	"bn-rebalance-bot/internal/funding"
	"bn-rebalance-bot/internal/ladder"
	"bn-rebalance-bot/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Action string

const (
	ActionIdle Action = "IDLE"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

type PriceSource interface {
	MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type RulesSource interface {
	InstrumentRules(ctx context.Context, symbol string) (ladder.Rules, error)
}

type FundsResolver interface {
	Resolve(ctx context.Context, req funding.Request) (funding.Funds, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, intents []ladder.Intent) exec.Report
}

// Outcome describes one evaluation of one asset.
type Outcome struct {
	Asset       string
	Symbol      string
	Action      Action
	MarketPrice decimal.Decimal
	Funds       funding.Funds
	Intents     []ladder.Intent
	Skips       []ladder.Skip
	Report      exec.Report
	EvaluatedAt time.Time
}

// Observer receives every outcome of a cycle, including failed ones.
type Observer func(Outcome, error)

type Engine struct {
	prices     PriceSource
	rules      RulesSource
	funds      FundsResolver
	dispatcher Dispatcher
	quoteFloor decimal.Decimal
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New builds an engine. quoteFloor is the liquid quote balance that must be
// exceeded before a buy spends it without touching savings.
func New(prices PriceSource, rules RulesSource, funds FundsResolver, dispatcher Dispatcher, quoteFloor decimal.Decimal, m *metrics.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		prices:     prices,
		rules:      rules,
		funds:      funds,
		dispatcher: dispatcher,
		quoteFloor: quoteFloor,
		log:        log,
		metrics:    metrics.OrDefault(m),
		now:        time.Now,
	}
}

// RunCycle evaluates each policy in order. Failures stay inside the asset that
// produced them.
func (e *Engine) RunCycle(ctx context.Context, policies []AssetPolicy, observe Observer) {
	for _, p := range policies {
		if ctx.Err() != nil {
			return
		}
		out, err := e.Evaluate(ctx, p)
		e.report(out, err)
		if observe != nil {
			observe(out, err)
		}
	}
}

// Evaluate runs the buy/sell decision for one asset. Buy is checked first; when
// it fires the sell threshold is not looked at.
func (e *Engine) Evaluate(ctx context.Context, p AssetPolicy) (out Outcome, err error) {
	symbol := p.Symbol()
	out = Outcome{Asset: p.Asset, Symbol: symbol, Action: ActionIdle, EvaluatedAt: e.now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindInternal, Op: "evaluate", Symbol: symbol, Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()

	price, err := e.prices.MarketPrice(ctx, symbol)
	if err != nil {
		return out, &Error{Kind: KindTransport, Op: "market price", Symbol: symbol, Err: err}
	}
	out.MarketPrice = price
	e.log.Debug("market price", zap.String("symbol", symbol), zap.String("price", price.String()))

	switch {
	case p.buyEnabled() && price.LessThanOrEqual(p.BuyPrice):
		out.Action = ActionBuy
		e.metrics.BuyTriggered.Inc()
		e.log.Info("buy threshold reached",
			zap.String("symbol", symbol),
			zap.String("price", price.String()),
			zap.String("buy_price", p.BuyPrice.String()),
		)
		err = e.buy(ctx, p, &out)
	case price.GreaterThanOrEqual(p.TargetPrice):
		out.Action = ActionSell
		e.metrics.SellTriggered.Inc()
		e.log.Info("sell threshold reached",
			zap.String("symbol", symbol),
			zap.String("price", price.String()),
			zap.String("target_price", p.TargetPrice.String()),
		)
		err = e.sell(ctx, p, &out)
	}
	return out, err
}

func (e *Engine) buy(ctx context.Context, p AssetPolicy, out *Outcome) error {
	funds, err := e.funds.Resolve(ctx, funding.Request{Asset: p.Quote, Floor: e.quoteFloor})
	out.Funds = funds
	if err != nil {
		return e.fundingError(out.Symbol, err)
	}
	rules, err := e.instrumentRules(ctx, out.Symbol)
	if err != nil {
		return err
	}
	intents, skips, err := ladder.BuildBuy(out.Symbol, funds.Amount, p.BuyPrice, p.SplitCount, rules)
	if err != nil {
		return &Error{Kind: KindInternal, Op: "build buy ladder", Symbol: out.Symbol, Err: err}
	}
	for _, skip := range skips {
		e.logSkip(out.Symbol, ladder.SideBuy, skip)
	}
	out.Skips = skips
	e.place(ctx, out, intents)
	return nil
}

func (e *Engine) sell(ctx context.Context, p AssetPolicy, out *Outcome) error {
	funds, err := e.funds.Resolve(ctx, funding.Request{Asset: p.Asset, Floor: decimal.Zero})
	out.Funds = funds
	if err != nil {
		return e.fundingError(out.Symbol, err)
	}
	rules, err := e.instrumentRules(ctx, out.Symbol)
	if err != nil {
		return err
	}
	intents, skip, err := ladder.BuildSell(out.Symbol, funds.Amount, p.SellPrice, p.SplitCount, rules)
	if err != nil {
		return &Error{Kind: KindInternal, Op: "build sell ladder", Symbol: out.Symbol, Err: err}
	}
	if skip != nil {
		e.logSkip(out.Symbol, ladder.SideSell, *skip)
		out.Skips = []ladder.Skip{*skip}
	}
	e.place(ctx, out, intents)
	return nil
}

func (e *Engine) place(ctx context.Context, out *Outcome, intents []ladder.Intent) {
	out.Intents = intents
	if len(intents) == 0 {
		e.log.Info("nothing tradable this cycle", zap.String("symbol", out.Symbol), zap.String("action", string(out.Action)))
		return
	}
	out.Report = e.dispatcher.Dispatch(ctx, intents)
	e.log.Info("ladder dispatched",
		zap.String("symbol", out.Symbol),
		zap.String("action", string(out.Action)),
		zap.Int("slices", len(intents)),
		zap.Int("placed", out.Report.Placed()),
		zap.Int("failed", out.Report.Failed()),
	)
}

func (e *Engine) instrumentRules(ctx context.Context, symbol string) (ladder.Rules, error) {
	rules, err := e.rules.InstrumentRules(ctx, symbol)
	if err != nil {
		return ladder.Rules{}, &Error{Kind: KindTransport, Op: "instrument rules", Symbol: symbol, Err: err}
	}
	return rules, nil
}

func (e *Engine) fundingError(symbol string, err error) error {
	if errors.Is(err, funding.ErrNoFunds) {
		return &Error{Kind: KindSkip, Op: "funding", Symbol: symbol, Err: err}
	}
	return &Error{Kind: KindTransport, Op: "funding", Symbol: symbol, Err: err}
}

func (e *Engine) logSkip(symbol string, side ladder.Side, skip ladder.Skip) {
	e.metrics.SlicesSkipped.Inc()
	e.log.Info("ladder slice skipped",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int("index", skip.Index),
		zap.String("reason", string(skip.Reason)),
		zap.String("price", skip.Price.String()),
		zap.String("quantity", skip.Quantity.String()),
		zap.String("notional", skip.Notional.String()),
	)
}

func (e *Engine) report(out Outcome, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{
		zap.String("symbol", out.Symbol),
		zap.String("action", string(out.Action)),
		zap.Error(err),
	}
	switch KindOf(err) {
	case KindSkip:
		e.log.Info("asset skipped", fields...)
	case KindTransport:
		e.metrics.AssetErrors.Inc()
		e.log.Warn("asset evaluation failed", fields...)
	default:
		e.metrics.AssetErrors.Inc()
		e.log.Error("asset evaluation failed", fields...)
	}
}
