// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faucet"

var (
	PoolClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_clients",
		Help:      "Signer clients currently available in the pool.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Transfer requests waiting in the queue.",
	})

	InflightTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_transfers",
		Help:      "Submitted transfers awaiting a receipt.",
	})

	BeingFundedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "being_funded_clients",
		Help:      "Clients held back until they are topped up.",
	})

	RequestBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "request_backlog",
		Help:      "Inbound addresses accepted but not yet taken by the faucet.",
	})

	TransfersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_submitted_total",
		Help:      "Transfers accepted by the node, by request kind.",
	}, []string{"kind"})

	SubmitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submit_errors_total",
		Help:      "Transfers rejected at submission.",
	})

	Confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmations_total",
		Help:      "Receipts reconciled for inflight transfers, by status.",
	}, []string{"status"})

	Timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timeouts_total",
		Help:      "Inflight transfers recovered by the timeout sweep.",
	})

	ReorgDroppedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reorg_dropped_blocks_total",
		Help:      "Announced blocks that could no longer be fetched.",
	})

	MonitorSubscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "monitor_subscriptions_total",
		Help:      "Block feed subscriptions established, by feed.",
	}, []string{"feed"})

	RequestsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_received_total",
		Help:      "Grant requests accepted, by source.",
	}, []string{"source"})

	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_calls_total",
		Help:      "Node queries, by method and outcome.",
	}, []string{"method", "status"})

	RPCRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_rate_limit_waits_total",
		Help:      "Node queries that had to wait for a rate limiter token.",
	})
)
