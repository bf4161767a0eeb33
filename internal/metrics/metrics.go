package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced      Counter
	OrdersFailed      Counter
	SlicesSkipped     Counter
	BuyTriggered      Counter
	SellTriggered     Counter
	Redemptions       Counter
	RedemptionsFailed Counter
	AssetErrors       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:      n,
		OrdersFailed:      n,
		SlicesSkipped:     n,
		BuyTriggered:      n,
		SellTriggered:     n,
		Redemptions:       n,
		RedemptionsFailed: n,
		AssetErrors:       n,
	}
}

// OrDefault returns m, or a no-op set when m is nil.
func OrDefault(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
