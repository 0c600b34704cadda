// Package metrics exposes Prometheus collectors for gateway decisions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	tokensIssued    *prometheus.CounterVec
	tokenExchange   *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	rateDecisions   *prometheus.CounterVec
	corsDecisions   *prometheus.CounterVec
	deprecatedCalls *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry so several servers can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodebird_tokens_issued_total",
			Help: "Tokens issued by API generation",
		}, []string{"version"}),
		tokenExchange: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodebird_token_exchange_total",
			Help: "Secret exchanges by outcome",
		}, []string{"version", "result"}), // result: issued, unregistered, error
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodebird_token_verifications_total",
			Help: "Token verifications by outcome",
		}, []string{"version", "result"}), // result: valid, expired, invalid
		rateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodebird_rate_limit_decisions_total",
			Help: "Rate limiter decisions by route",
		}, []string{"route", "result"}),
		corsDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodebird_cors_decisions_total",
			Help: "Dynamic CORS decisions",
		}, []string{"result"}),
		deprecatedCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodebird_deprecated_calls_total",
			Help: "Calls served by deprecated or retired generations",
		}, []string{"version", "state"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodebird_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TokenIssued(version string) {
	m.tokensIssued.WithLabelValues(version).Inc()
	m.tokenExchange.WithLabelValues(version, "issued").Inc()
}

func (m *Metrics) TokenExchangeFailed(version, result string) {
	m.tokenExchange.WithLabelValues(version, result).Inc()
}

func (m *Metrics) Verification(version, result string) {
	m.verifications.WithLabelValues(version, result).Inc()
}

func (m *Metrics) RateDecision(route string, allowed bool) {
	m.rateDecisions.WithLabelValues(route, outcome(allowed, "allowed", "limited")).Inc()
}

func (m *Metrics) CORSDecision(granted bool) {
	m.corsDecisions.WithLabelValues(outcome(granted, "granted", "denied")).Inc()
}

func (m *Metrics) DeprecatedCall(version, state string) {
	m.deprecatedCalls.WithLabelValues(version, state).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
