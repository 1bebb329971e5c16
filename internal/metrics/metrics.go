// Package metrics exposes Prometheus counters for stimulator activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	uploads     prometheus.Counter
	triggers    prometheus.Counter
	rejections  *prometheus.CounterVec
	proxyErrors *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastDemand  prometheus.Gauge
	enabled     prometheus.Gauge
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "ds8r_uploads_total",
			Help: "Total number of parameter records accepted by the device",
		}),
		triggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "ds8r_triggers_total",
			Help: "Total number of pulses triggered",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ds8r_rejections_total",
			Help: "Parameter records rejected before reaching the device",
		}, []string{"reason"}),
		proxyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ds8r_proxy_errors_total",
			Help: "Proxy failures by normalized code",
		}, []string{"code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ds8r_proxy_call_duration_seconds",
			Help:    "Duration of proxy invocations",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		lastDemand: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ds8r_last_demand_milliamps",
			Help: "Demand of the last uploaded record in mA",
		}),
		enabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ds8r_output_enabled",
			Help: "1 when the last uploaded record has the output enabled",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Uploaded records an accepted upload.
func (m *Metrics) Uploaded(demandMilliamps float64, enabled bool) {
	m.uploads.Inc()
	m.lastDemand.Set(demandMilliamps)
	if enabled {
		m.enabled.Set(1)
	} else {
		m.enabled.Set(0)
	}
}

// Triggered records a pulse.
func (m *Metrics) Triggered() {
	m.triggers.Inc()
}

// Rejected records a record refused by validation or the safety limit.
func (m *Metrics) Rejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// ProxyError records a failed proxy call.
func (m *Metrics) ProxyError(code string) {
	m.proxyErrors.WithLabelValues(code).Inc()
}

// ObserveCall records the duration of a proxy operation.
func (m *Metrics) ObserveCall(op string, d time.Duration) {
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}
