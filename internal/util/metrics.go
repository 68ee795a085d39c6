package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_trades_total",
		Help: "Total number of executed trades",
	}, []string{"kind"})

	TradesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_trades_failed_total",
		Help: "Total number of rejected trades",
	}, []string{"kind", "reason"})

	TradeVolumeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_trade_volume_total",
		Help: "Currency moved by executed trades",
	}, []string{"kind", "currency"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_refunds_total",
		Help: "Currency refunded after partial delivery",
	}, []string{"currency"})

	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_contract_claims_total",
		Help: "Total number of successful contract claims",
	})

	ClaimsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_contract_claims_failed_total",
		Help: "Total number of rejected contract claims",
	}, []string{"reason"})

	ContractsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_contracts_generated_total",
		Help: "Total number of contracts generated by refills",
	})

	PushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_pushes_total",
		Help: "Total number of catalog and dynamic-state pushes",
	}, []string{"type"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_latency_seconds",
		Help:    "Latency of store operations including locking",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_tick_duration_seconds",
		Help:    "Time spent draining deferred actions per tick",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
