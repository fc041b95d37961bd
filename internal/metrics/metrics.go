// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coinbot"

// ── Cycle ──

var CyclesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Completed decision cycles",
	},
)

var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one decision cycle",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Decisions by action",
	},
	[]string{"action"},
)

var FetchErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "fetch_errors_total",
		Help:      "Market data fetch failures by instrument",
	},
	[]string{"instrument"},
)

// ── Execution ──

var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "orders_total",
		Help:      "Order submissions by side and outcome",
	},
	[]string{"side", "outcome"},
)

// OrderLatency is the exchange round trip for market orders.
var OrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "order_latency_seconds",
		Help:      "Time to submit a market order",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"exchange", "side"},
)

var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "trades_total",
		Help:      "Ledger trade records by kind",
	},
	[]string{"kind"},
)

// ── Portfolio ──

var CashBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "cash_usd",
		Help:      "Ledger cash balance",
	},
)

var TotalBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "total_balance_usd",
		Help:      "Cash plus positions at the latest prices",
	},
)

var RealizedPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "realized_pnl_usd",
		Help:      "Accumulated realized PnL",
	},
)

var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "open_positions",
		Help:      "Number of open positions",
	},
)

var Exposure = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "exposure_ratio",
		Help:      "Share of total balance held in positions",
	},
)

// ── API ──

var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code",
	},
	[]string{"method", "code"},
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
