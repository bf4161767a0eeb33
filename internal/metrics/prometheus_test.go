package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.SlicesSkipped.Inc()
	prom.Metrics.BuyTriggered.Inc()
	prom.Metrics.SellTriggered.Inc()
	prom.Metrics.Redemptions.Inc()
	prom.Metrics.RedemptionsFailed.Inc()
	prom.Metrics.AssetErrors.Inc()

	assertCounter(t, prom.ordersPlaced, 2)
	assertCounter(t, prom.ordersFailed, 1)
	assertCounter(t, prom.slicesSkipped, 1)
	assertCounter(t, prom.buyTriggered, 1)
	assertCounter(t, prom.sellTriggered, 1)
	assertCounter(t, prom.redemptions, 1)
	assertCounter(t, prom.redemptionsFailed, 1)
	assertCounter(t, prom.assetErrors, 1)
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	srv := httptest.NewServer(prom.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "bn_rebalance_bot_orders_placed_total 1") {
		t.Fatalf("expected orders_placed_total in output, got %s", body)
	}
}

func TestOrDefault(t *testing.T) {
	m := OrDefault(nil)
	if m == nil || m.OrdersPlaced == nil {
		t.Fatalf("expected noop metrics")
	}
	m.AssetErrors.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
