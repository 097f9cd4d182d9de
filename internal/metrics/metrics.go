// Package metrics exposes marketd's Prometheus instruments on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

const namespace = "marketd"

// ResultOK is the result label of a successful operation.
const ResultOK = "ok"

// Metrics holds every collector marketd exports.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts market operations by name and result, where
	// result is "ok" or the error code.
	OperationsTotal *prometheus.CounterVec
	// PayoutLamportsTotal sums lamports paid out by withdrawals.
	PayoutLamportsTotal prometheus.Counter
	// BetStakeLamportsTotal sums lamports staked by accepted bets.
	BetStakeLamportsTotal prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WSConnections       prometheus.Gauge
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Market operations by name and result.",
		}, []string{"operation", "result"}),
		PayoutLamportsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_lamports_total",
			Help:      "Lamports paid to winning holders.",
		}),
		BetStakeLamportsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bet_stake_lamports_total",
			Help:      "Lamports staked by accepted bets.",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
	}
}

// Result maps an operation error to its result label.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	return domain.CodeOf(err)
}

// ObserveOperation counts one market operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, Result(err)).Inc()
}

// AddPayout records lamports paid by a withdrawal.
func (m *Metrics) AddPayout(lamports uint64) {
	if m == nil {
		return
	}
	m.PayoutLamportsTotal.Add(float64(lamports))
}

// AddBetStake records lamports staked by a bet.
func (m *Metrics) AddBetStake(lamports uint64) {
	if m == nil {
		return
	}
	m.BetStakeLamportsTotal.Add(float64(lamports))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// WSConnected adjusts the open WebSocket gauge.
func (m *Metrics) WSConnected(open bool) {
	if m == nil {
		return
	}
	if open {
		m.WSConnections.Inc()
	} else {
		m.WSConnections.Dec()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
