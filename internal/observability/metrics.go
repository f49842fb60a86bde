package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the assistant service. All
// recording helpers are nil-safe so components can run without metrics.
type Metrics struct {
	// Chat pipeline.
	ChatResponses *prometheus.CounterVec // labels: tier={server,direct,fallback,error}
	ChatPanics    prometheus.Counter

	// Search augmentation.
	SearchRequests *prometheus.CounterVec // labels: outcome={ok,error,skipped,cache_hit}

	// Outbound calls.
	UpstreamDuration *prometheus.HistogramVec // labels: upstream={llm,search,proxy}

	// Inbound chat proxy endpoint.
	ProxyRequests *prometheus.CounterVec // labels: result={ok,no_key,upstream_error,error}
	RateLimited   prometheus.Counter
}

const namespace = "hdr"

func newCollectors(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		ChatResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_responses_total",
			Help:      help("Assistant replies by the tier that produced them."),
		}, []string{"tier"}),
		ChatPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_panics_recovered_total",
			Help:      help("Panics recovered inside the chat pipeline."),
		}),
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      help("Search augmentation lookups by outcome."),
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      help("Outbound request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"upstream"}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      help("Chat proxy endpoint requests by result."),
		}, []string{"result"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      help("Requests rejected by the rate limiter."),
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newCollectors(true)
	prometheus.MustRegister(
		m.ChatResponses,
		m.ChatPanics,
		m.SearchRequests,
		m.UpstreamDuration,
		m.ProxyRequests,
		m.RateLimited,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newCollectors(false)
}

func (m *Metrics) Response(tier string) {
	if m == nil {
		return
	}
	m.ChatResponses.WithLabelValues(tier).Inc()
}

func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.ChatPanics.Inc()
}

func (m *Metrics) Search(outcome string) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Upstream(name string, start time.Time) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Proxy(result string) {
	if m == nil {
		return
	}
	m.ProxyRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) Limited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
