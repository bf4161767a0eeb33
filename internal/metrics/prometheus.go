package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bn_rebalance_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	ordersPlaced      prometheus.Counter
	ordersFailed      prometheus.Counter
	slicesSkipped     prometheus.Counter
	buyTriggered      prometheus.Counter
	sellTriggered     prometheus.Counter
	redemptions       prometheus.Counter
	redemptionsFailed prometheus.Counter
	assetErrors       prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry:          prometheus.NewRegistry(),
		ordersPlaced:      newCounter("orders_placed_total", "Total number of ladder slices accepted by the exchange."),
		ordersFailed:      newCounter("orders_failed_total", "Total number of ladder slice placement failures."),
		slicesSkipped:     newCounter("slices_skipped_total", "Total number of ladder slices or batches skipped by quantization checks."),
		buyTriggered:      newCounter("buy_triggered_total", "Total number of cycles where the buy threshold fired."),
		sellTriggered:     newCounter("sell_triggered_total", "Total number of cycles where the sell threshold fired."),
		redemptions:       newCounter("redemptions_total", "Total number of savings redemptions requested."),
		redemptionsFailed: newCounter("redemptions_failed_total", "Total number of failed savings redemptions."),
		assetErrors:       newCounter("asset_errors_total", "Total number of per-asset evaluation errors."),
	}
	p.registry.MustRegister(
		p.ordersPlaced,
		p.ordersFailed,
		p.slicesSkipped,
		p.buyTriggered,
		p.sellTriggered,
		p.redemptions,
		p.redemptionsFailed,
		p.assetErrors,
	)
	p.Metrics = &Metrics{
		OrdersPlaced:      promCounter{p.ordersPlaced},
		OrdersFailed:      promCounter{p.ordersFailed},
		SlicesSkipped:     promCounter{p.slicesSkipped},
		BuyTriggered:      promCounter{p.buyTriggered},
		SellTriggered:     promCounter{p.sellTriggered},
		Redemptions:       promCounter{p.redemptions},
		RedemptionsFailed: promCounter{p.redemptionsFailed},
		AssetErrors:       promCounter{p.assetErrors},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
