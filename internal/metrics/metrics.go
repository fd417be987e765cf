// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TradesReceived counts normalized trades by exchange and side.
var TradesReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "buyalert_trades_received_total",
		Help: "Trades decoded from exchange streams",
	},
	[]string{"exchange", "side"},
)

// MessagesSkipped counts frames that could not be decoded.
var MessagesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "buyalert_messages_skipped_total",
		Help: "Stream messages skipped because they could not be parsed",
	},
	[]string{"exchange"},
)

// Reconnects counts stream reconnect attempts.
var Reconnects = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "buyalert_stream_reconnects_total",
		Help: "Streaming connection retries",
	},
	[]string{"exchange", "stream"},
)

// Order-book sweep detection.
var (
	SweepsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "buyalert_sweeps_detected_total",
			Help: "Order-book sweeps forwarded as buy trades",
		},
	)

	SweepsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buyalert_sweeps_rejected_total",
			Help: "Order-book sweeps discarded",
		},
		[]string{"reason"},
	)
)

// Aggregation and dispatch.
var (
	AggregationsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buyalert_aggregations_fired_total",
			Help: "Aggregation buckets emitted",
		},
		[]string{"reason", "qualified"},
	)

	ValueCorrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buyalert_value_corrections_total",
			Help: "Trades whose reported value was recomputed from price and quantity",
		},
		[]string{"exchange"},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buyalert_deliveries_total",
			Help: "Per-target alert deliveries",
		},
		[]string{"platform", "mode", "result"},
	)

	AlertsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "buyalert_alerts_lost_total",
			Help: "Alerts that reached no target",
		},
	)
)

// Process state gauges.
var (
	Threshold = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "buyalert_threshold_value",
			Help: "Alert threshold in force",
		},
	)

	ExchangeListed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buyalert_exchange_listed",
			Help: "1 when the asset is listed on the exchange",
		},
		[]string{"exchange"},
	)
)

func init() {
	prometheus.MustRegister(TradesReceived, MessagesSkipped, Reconnects)
	prometheus.MustRegister(SweepsDetected, SweepsRejected)
	prometheus.MustRegister(AggregationsFired, ValueCorrections, Deliveries, AlertsLost)
	prometheus.MustRegister(Threshold, ExchangeListed)
}
