package funding

import (
	"context"
	"errors"
	"strings"

	"bn-rebalance-bot/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoFunds = errors.New("no funds available this cycle")

// Position is a redeemable savings balance.
type Position struct {
	Asset      string
	Amount     decimal.Decimal
	CanRedeem  bool
	PositionID string
}

type Balances interface {
	LiquidBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

type Savings interface {
	RedeemablePositions(ctx context.Context) ([]Position, error)
	Redeem(ctx context.Context, positionID string, amount decimal.Decimal) error
}

// Request asks for spendable balance of Asset. The liquid balance is used
// directly when it is above Floor.
type Request struct {
	Asset string
	Floor decimal.Decimal
}

type Funds struct {
	Asset      string
	Amount     decimal.Decimal
	Redeemed   bool
	PositionID string
}

type Resolver struct {
	balances Balances
	savings  Savings
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewResolver(balances Balances, savings Savings, m *metrics.Metrics, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		balances: balances,
		savings:  savings,
		log:      log,
		metrics:  metrics.OrDefault(m),
	}
}

// Resolve returns the liquid balance for req.Asset, redeeming at most one
// savings position when the balance is not above the floor.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Funds, error) {
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	balance := r.liquid(ctx, asset)
	if balance.GreaterThan(req.Floor) {
		return Funds{Asset: asset, Amount: balance}, nil
	}
	r.log.Info("liquid balance insufficient, checking savings",
		zap.String("asset", asset),
		zap.String("balance", balance.String()),
		zap.String("floor", req.Floor.String()),
	)
	if r.savings == nil {
		return Funds{Asset: asset, Amount: balance}, ErrNoFunds
	}
	positions, err := r.savings.RedeemablePositions(ctx)
	if err != nil {
		r.log.Warn("savings positions lookup failed", zap.String("asset", asset), zap.Error(err))
		return Funds{Asset: asset, Amount: balance}, ErrNoFunds
	}
	pos, ok := firstRedeemable(positions, asset)
	if !ok {
		r.log.Info("no redeemable savings position", zap.String("asset", asset))
		return Funds{Asset: asset, Amount: balance}, ErrNoFunds
	}
	r.log.Info("redeeming savings position",
		zap.String("asset", asset),
		zap.String("position_id", pos.PositionID),
		zap.String("amount", pos.Amount.String()),
	)
	r.metrics.Redemptions.Inc()
	if err := r.savings.Redeem(ctx, pos.PositionID, pos.Amount); err != nil {
		r.metrics.RedemptionsFailed.Inc()
		r.log.Warn("savings redemption failed",
			zap.String("asset", asset),
			zap.String("position_id", pos.PositionID),
			zap.Error(err),
		)
	}
	balance = r.liquid(ctx, asset)
	funds := Funds{Asset: asset, Amount: balance, Redeemed: true, PositionID: pos.PositionID}
	if !balance.IsPositive() {
		return funds, ErrNoFunds
	}
	r.log.Info("liquid balance after redemption",
		zap.String("asset", asset),
		zap.String("balance", balance.String()),
	)
	return funds, nil
}

func (r *Resolver) liquid(ctx context.Context, asset string) decimal.Decimal {
	balance, err := r.balances.LiquidBalance(ctx, asset)
	if err != nil {
		r.log.Warn("liquid balance lookup failed", zap.String("asset", asset), zap.Error(err))
		return decimal.Zero
	}
	return balance
}

func firstRedeemable(positions []Position, asset string) (Position, bool) {
	for _, pos := range positions {
		if !strings.EqualFold(pos.Asset, asset) || !pos.CanRedeem {
			continue
		}
		if !pos.Amount.IsPositive() {
			continue
		}
		return pos, true
	}
	return Position{}, false
}
