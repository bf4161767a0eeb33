package exec

import (
	"context"
	"fmt"
	"time"

	"bn-rebalance-bot/internal/ladder"
	"bn-rebalance-bot/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrderResult is the exchange acknowledgement of one placed slice.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        string
}

// Placer submits one GTC limit order.
type Placer interface {
	PlaceLimitOrder(ctx context.Context, intent ladder.Intent) (OrderResult, error)
}

type SliceResult struct {
	Intent  ladder.Intent
	Order   OrderResult
	Err     error
	Elapsed time.Duration
}

func (r SliceResult) OK() bool {
	return r.Err == nil
}

type Report struct {
	Results []SliceResult
}

func (r Report) Placed() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	return len(r.Results) - r.Placed()
}

type Dispatcher struct {
	placer  Placer
	log     *zap.Logger
	metrics *metrics.Metrics
	limit   int
}

// NewDispatcher builds a dispatcher. A limit of zero or less runs one worker
// per intent.
func NewDispatcher(placer Placer, limit int, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		placer:  placer,
		log:     log,
		metrics: metrics.OrDefault(m),
		limit:   limit,
	}
}

// Dispatch places every intent concurrently and returns once all of them have
// either succeeded or failed. Results keep the order of intents. Cancelling ctx
// does not abort placements already issued; the placer's own timeout bounds them.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []ladder.Intent) Report {
	report := Report{Results: make([]SliceResult, len(intents))}
	if len(intents) == 0 {
		return report
	}
	placeCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	limit := d.limit
	if limit <= 0 || limit > len(intents) {
		limit = len(intents)
	}
	g.SetLimit(limit)
	for i := range intents {
		g.Go(func() error {
			report.Results[i] = d.place(placeCtx, intents[i])
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (d *Dispatcher) place(ctx context.Context, intent ladder.Intent) (res SliceResult) {
	res.Intent = intent
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("order placement panicked: %v", r)
		}
		res.Elapsed = time.Since(start)
		d.record(res)
	}()
	res.Order, res.Err = d.placer.PlaceLimitOrder(ctx, intent)
	return res
}

func (d *Dispatcher) record(res SliceResult) {
	fields := []zap.Field{
		zap.String("symbol", res.Intent.Symbol),
		zap.String("side", string(res.Intent.Side)),
		zap.Int("index", res.Intent.Index),
		zap.String("price", res.Intent.Price.String()),
		zap.String("quantity", res.Intent.Quantity.String()),
		zap.Duration("elapsed", res.Elapsed),
	}
	if res.Err != nil {
		d.metrics.OrdersFailed.Inc()
		d.log.Warn("limit order failed", append(fields, zap.Error(res.Err))...)
		return
	}
	d.metrics.OrdersPlaced.Inc()
	d.log.Info("limit order placed", append(fields,
		zap.String("order_id", res.Order.OrderID),
		zap.String("client_order_id", res.Order.ClientOrderID),
		zap.String("status", res.Order.Status),
	)...)
}
