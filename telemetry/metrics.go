package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes decision cycles to Prometheus. It is also a Publisher:
// every published value becomes the scan_value gauge for its key.
type Metrics struct {
	gatherer prometheus.Gatherer

	Cycles   *prometheus.CounterVec
	Values   *prometheus.GaugeVec
	Delivery prometheus.Histogram
}

// NewMetrics registers the metrics with reg, defaulting to the global
// registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m := &Metrics{
		gatherer: gatherer,
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scan_cycles_total",
			Help: "Decision cycles by outcome and trigger state.",
		}, []string{"status", "state"}),
		Values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scan_value",
			Help: "Most recently published telemetry value.",
		}, []string{"key"}),
		Delivery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scan_delivery_seconds",
			Help:    "Time taken to deliver scan files to the lidar.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.Cycles, m.Values, m.Delivery} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Publish(key string, value float64, ts time.Time) {
	m.Values.WithLabelValues(key).Set(value)
}

func (m *Metrics) ObserveCycle(status, state string) {
	m.Cycles.WithLabelValues(status, state).Inc()
}

func (m *Metrics) ObserveDelivery(d time.Duration) {
	m.Delivery.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
