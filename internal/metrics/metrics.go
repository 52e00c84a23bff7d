// Package metrics is the relay's Prometheus surface (SPEC_FULL §4.11):
// trade win/loss counters per asset, an open-contracts gauge, a
// grandProfit gauge, and an analysis-latency histogram. Grounded on
// SreemukhMantripragada-trading-platform's pkg/shared/metrics.go
// (namespaced MustRegister helpers, a dedicated metrics HTTP server),
// generalized from bar-builder ingestion counters to trade/lot
// observability.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketrelay"

// Registry holds every metric the relay exports.
type Registry struct {
	TradesWon  *prometheus.CounterVec
	TradesLost *prometheus.CounterVec

	OpenContracts prometheus.Gauge
	LotProfit     *prometheus.GaugeVec

	AnalysisLatency prometheus.Histogram
}

// NewRegistry constructs and registers every metric against the default
// Prometheus registry (teacher's MustRegister-on-construction idiom).
func NewRegistry() *Registry {
	r := &Registry{
		TradesWon: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_won_total",
			Help:      "Resolved contracts with a non-negative profit, by asset.",
		}, []string{"asset"}),
		TradesLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_lost_total",
			Help:      "Resolved contracts with a negative profit, by asset.",
		}, []string{"asset"}),
		OpenContracts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_contracts",
			Help:      "Contracts currently being tracked by the Trade Lifecycle Manager.",
		}),
		LotProfit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lot_grand_profit",
			Help:      "Current grandProfit of the active lot, by asset.",
		}, []string{"asset"}),
		AnalysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_seconds",
			Help:      "Wall-clock time to run the Indicator Kernel + Analysis Generator for one candle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	prometheus.MustRegister(r.TradesWon, r.TradesLost, r.OpenContracts, r.LotProfit, r.AnalysisLatency)
	return r
}

// ObserveResult increments the won/lost counter for a resolved contract's
// terminal result (spec §4.6: win/loss, not raw profit sign — a timed-out
// contract is always a loss regardless of last-seen profit).
func (r *Registry) ObserveResult(asset string, win bool) {
	if win {
		r.TradesWon.WithLabelValues(asset).Inc()
	} else {
		r.TradesLost.WithLabelValues(asset).Inc()
	}
}

// ObserveAnalysisLatency records the wall-clock cost of one Indicator
// Kernel + Analysis Generator pass (spec §4.11).
func (r *Registry) ObserveAnalysisLatency(d time.Duration) {
	r.AnalysisLatency.Observe(d.Seconds())
}

// Handler returns the /metrics HTTP handler cmd/relay/main.go registers.
func Handler() http.Handler {
	return promhttp.Handler()
}
