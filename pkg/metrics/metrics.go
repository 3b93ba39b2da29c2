// Package metrics defines the Prometheus collectors exported by the
// payout service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WithdrawalsTotal counts withdrawal submissions by terminal outcome.
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_withdrawals_total",
		Help: "Withdrawal submissions by outcome",
	}, []string{"outcome", "method"})

	// WithdrawalAmountMinor observes withdrawal amounts in minor units.
	WithdrawalAmountMinor = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_withdrawal_amount_minor",
		Help:    "Withdrawal amounts in minor units",
		Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
	}, []string{"method"})

	// ProviderCallDuration times provider payout calls.
	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_provider_call_duration_seconds",
		Help:    "Duration of payout provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "result"})

	// ProviderRetriesTotal counts retried provider attempts.
	ProviderRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_provider_retries_total",
		Help: "Provider payout attempts beyond the first",
	}, []string{"provider"})

	// WebhookEventsTotal counts inbound webhook deliveries by outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_webhook_events_total",
		Help: "Inbound provider webhook deliveries",
	}, []string{"provider", "event_type", "outcome"})

	// ReversalsTotal counts webhook-driven reversals of approved withdrawals.
	ReversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_reversals_total",
		Help: "Approved withdrawals reversed by provider webhooks",
	}, []string{"provider"})

	// ReconciliationSweepsTotal counts reconciliation sweep runs.
	ReconciliationSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_reconciliation_sweeps_total",
		Help: "Reconciliation sweep executions",
	})

	// UnreconciledGauge tracks requests awaiting reconciliation.
	UnreconciledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payout_unreconciled_withdrawals",
		Help: "Withdrawal requests flagged for reconciliation",
	})

	// DatabaseConnectionsGauge tracks sql pool state.
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payout_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})

	// HTTPRequestDuration times HTTP requests by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
