// Package metrics exposes engine and provider activity as Prometheus
// collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/provider"
)

const namespace = "showroom"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	calls     *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	retries   *prometheus.CounterVec
	providers *prometheus.GaugeVec
	failures  *prometheus.GaugeVec
}

var _ conversation.Observer = (*Metrics)(nil)

// New registers all collectors, including the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_calls_total",
			Help:      "Engine calls by operation, assistant and outcome.",
		}, []string{"op", "assistant", "outcome"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_tokens_total",
			Help:      "Tokens charged to sessions.",
		}, []string{"op", "assistant"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_duration_seconds",
			Help:      "Engine call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"op"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_retries_total",
			Help:      "Retried service calls by failure kind.",
		}, []string{"kind"}),
		providers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_available",
			Help:      "1 when the provider accepts requests.",
		}, []string{"provider", "model"}),
		failures: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_consecutive_failures",
			Help:      "Consecutive failures of each provider.",
		}, []string{"provider"}),
	}
}

// ObserveCall implements conversation.Observer.
func (m *Metrics) ObserveCall(op, assistant, outcome string, tokens int, elapsed time.Duration) {
	m.calls.WithLabelValues(op, assistant, outcome).Inc()
	if tokens > 0 && outcome == "ok" {
		m.tokens.WithLabelValues(op, assistant).Add(float64(tokens))
	}
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRetry implements conversation.Observer.
func (m *Metrics) ObserveRetry(kind conversation.ErrorKind) {
	m.retries.WithLabelValues(string(kind)).Inc()
}

// SetProviders publishes a provider health report.
func (m *Metrics) SetProviders(report []provider.Status) {
	for _, s := range report {
		up := 0.0
		if s.Available {
			up = 1
		}
		m.providers.WithLabelValues(s.Name, s.Model).Set(up)
		m.failures.WithLabelValues(s.Name).Set(float64(s.Failures))
	}
}

// WatchSessions registers a gauge that reports fn at scrape time.
func (m *Metrics) WatchSessions(fn func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Sessions held by the store.",
	}, func() float64 { return float64(fn()) })
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
