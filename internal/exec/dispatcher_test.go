package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bn-rebalance-bot/internal/ladder"
	"bn-rebalance-bot/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type mockPlacer struct {
	mu      sync.Mutex
	calls   []int
	failOn  map[int]error
	panicOn map[int]bool
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockPlacer) PlaceLimitOrder(ctx context.Context, intent ladder.Intent) (OrderResult, error) {
	_ = ctx
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.calls = append(m.calls, intent.Index)
	m.mu.Unlock()
	if m.panicOn[intent.Index] {
		panic("boom")
	}
	if err := m.failOn[intent.Index]; err != nil {
		return OrderResult{}, err
	}
	return OrderResult{OrderID: fmt.Sprintf("oid-%d", intent.Index), Status: "NEW"}, nil
}

type countingCounter struct {
	n atomic.Int64
}

func (c *countingCounter) Inc() { c.n.Add(1) }

func intents(n int) []ladder.Intent {
	out := make([]ladder.Intent, n)
	for i := range out {
		out[i] = ladder.Intent{
			Symbol:   "BTCUSDT",
			Side:     ladder.SideSell,
			Price:    decimal.NewFromInt(int64(100 + i)),
			Quantity: decimal.RequireFromString("0.2"),
			Index:    i + 1,
		}
	}
	return out
}

func TestDispatchPartialSuccess(t *testing.T) {
	errTwo := errors.New("insufficient balance")
	errFour := errors.New("price filter")
	placer := &mockPlacer{failOn: map[int]error{2: errTwo, 4: errFour}}
	placed := &countingCounter{}
	failed := &countingCounter{}
	m := metrics.NewNoop()
	m.OrdersPlaced = placed
	m.OrdersFailed = failed
	d := NewDispatcher(placer, 0, m, zap.NewNop())

	report := d.Dispatch(context.Background(), intents(5))
	if len(report.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(report.Results))
	}
	for _, idx := range []int{1, 3, 5} {
		res := report.Results[idx-1]
		if !res.OK() {
			t.Fatalf("expected slice %d to succeed, got %v", idx, res.Err)
		}
		if res.Order.OrderID != fmt.Sprintf("oid-%d", idx) {
			t.Fatalf("unexpected order id %q", res.Order.OrderID)
		}
	}
	if !errors.Is(report.Results[1].Err, errTwo) {
		t.Fatalf("expected slice 2 error %v, got %v", errTwo, report.Results[1].Err)
	}
	if !errors.Is(report.Results[3].Err, errFour) {
		t.Fatalf("expected slice 4 error %v, got %v", errFour, report.Results[3].Err)
	}
	if report.Placed() != 3 || report.Failed() != 2 {
		t.Fatalf("expected 3 placed / 2 failed, got %d / %d", report.Placed(), report.Failed())
	}
	if placed.n.Load() != 3 || failed.n.Load() != 2 {
		t.Fatalf("unexpected counters placed=%d failed=%d", placed.n.Load(), failed.n.Load())
	}
	if len(placer.calls) != 5 {
		t.Fatalf("expected every slice attempted, got %d calls", len(placer.calls))
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	placer := &mockPlacer{panicOn: map[int]bool{3: true}}
	d := NewDispatcher(placer, 0, nil, zap.NewNop())
	report := d.Dispatch(context.Background(), intents(4))
	if report.Results[2].OK() {
		t.Fatalf("expected panicking slice to fail")
	}
	if report.Placed() != 3 {
		t.Fatalf("expected 3 placed, got %d", report.Placed())
	}
}

func TestDispatchRunsConcurrently(t *testing.T) {
	placer := &mockPlacer{delay: 50 * time.Millisecond}
	d := NewDispatcher(placer, 0, nil, zap.NewNop())
	start := time.Now()
	report := d.Dispatch(context.Background(), intents(5))
	elapsed := time.Since(start)
	if report.Placed() != 5 {
		t.Fatalf("expected 5 placed, got %d", report.Placed())
	}
	if elapsed >= 200*time.Millisecond {
		t.Fatalf("expected parallel placement, took %s", elapsed)
	}
	if placer.maxInFlight.Load() < 2 {
		t.Fatalf("expected overlapping placements, max in flight %d", placer.maxInFlight.Load())
	}
}

func TestDispatchRespectsLimit(t *testing.T) {
	placer := &mockPlacer{delay: 10 * time.Millisecond}
	d := NewDispatcher(placer, 2, nil, zap.NewNop())
	report := d.Dispatch(context.Background(), intents(6))
	if report.Placed() != 6 {
		t.Fatalf("expected 6 placed, got %d", report.Placed())
	}
	if got := placer.maxInFlight.Load(); got > 2 {
		t.Fatalf("expected at most 2 in flight, got %d", got)
	}
}

func TestDispatchEmpty(t *testing.T) {
	d := NewDispatcher(&mockPlacer{}, 0, nil, nil)
	report := d.Dispatch(context.Background(), nil)
	if len(report.Results) != 0 || report.Placed() != 0 || report.Failed() != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

type blockingPlacer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingPlacer) PlaceLimitOrder(ctx context.Context, intent ladder.Intent) (OrderResult, error) {
	close(b.started)
	<-b.release
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{OrderID: fmt.Sprintf("oid-%d", intent.Index), Status: "NEW"}, nil
}

func TestDispatchCancelDoesNotAbortInFlight(t *testing.T) {
	placer := &blockingPlacer{started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(placer, 0, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Report, 1)
	go func() { done <- d.Dispatch(ctx, intents(1)) }()
	<-placer.started
	cancel()
	close(placer.release)

	report := <-done
	if report.Placed() != 1 || report.Failed() != 0 {
		t.Fatalf("expected in-flight slice to complete after cancel, got %+v", report.Results)
	}
}
