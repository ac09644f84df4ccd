// Package metrics exposes Prometheus counters for the API node.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderbook"

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	signedRequests   *prometheus.CounterVec
	trades           *prometheus.CounterVec
	fees             *prometheus.CounterVec
	crankerRewards   *prometheus.CounterVec
	wsClients        prometheus.Gauge
	wsSlowDisconnect prometheus.Counter
}

// New registers all collectors plus the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		signedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "signed_requests_total",
			Help:      "Signed requests by type and outcome",
		}, []string{"type", "result"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "trades_total",
			Help:      "Committed fills by market",
		}, []string{"market"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "fees_total",
			Help:      "Fees charged in quote minor units by market",
		}, []string{"market"}),
		crankerRewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dex",
			Name:      "cranker_rewards_total",
			Help:      "Cranker rewards paid in quote minor units by market",
		}, []string{"market"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),
		wsSlowDisconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "slow_disconnects_total",
			Help:      "Clients dropped because their send buffer was full",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.signedRequests,
		m.trades,
		m.fees,
		m.crankerRewards,
		m.wsClients,
		m.wsSlowDisconnect,
	)
	return m
}

// Registry returns the registry backing Handler
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveSignedRequest records the outcome ("ok" or an error class) of a
// signed request
func (m *Metrics) ObserveSignedRequest(txType, result string) {
	m.signedRequests.WithLabelValues(txType, result).Inc()
}

// ObserveTrade records one committed fill
func (m *Metrics) ObserveTrade(symbol string, fee, crankerReward uint64) {
	m.trades.WithLabelValues(symbol).Inc()
	m.fees.WithLabelValues(symbol).Add(float64(fee))
	m.crankerRewards.WithLabelValues(symbol).Add(float64(crankerReward))
}

// ClientConnected and ClientDisconnected track the WebSocket gauge
func (m *Metrics) ClientConnected()    { m.wsClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.wsClients.Dec() }

// SlowClientDropped counts a forced disconnect
func (m *Metrics) SlowClientDropped() { m.wsSlowDisconnect.Inc() }
