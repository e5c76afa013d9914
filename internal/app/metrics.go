package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_recorded_total",
		Help: "Transactions persisted with their balance update.",
	}, []string{"kind"})

	transactionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_rejected_total",
		Help: "Transaction requests refused before any write.",
	}, []string{"reason"})

	anomaliesFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_anomalies_flagged_total",
		Help: "Transactions newly flagged by the anomaly scan, per rule.",
	}, []string{"rule"})

	balanceReconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_balance_reconciliations_total",
		Help: "Balance reconciliations by outcome (queued, resolved, failed).",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_job_duration_seconds",
		Help:    "Duration of scheduled ledger jobs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)
