// Package metrics holds the prometheus collectors shared by the client
// backends and the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for outcome labels.
const (
	Ok   = "ok"
	Fail = "fail"
)

var (
	StatementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsql_client_statements_total",
		Help: "Statements executed by the client, by backend mode, statement kind and outcome.",
	}, []string{"mode", "kind", "outcome"})

	StatementSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libsql_client_statement_seconds",
		Help:    "Statement execution latency in seconds, by backend mode.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
	}, []string{"mode"})

	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsql_client_transactions_total",
		Help: "Transactions ended by the client, by backend mode and action (commit, rollback).",
	}, []string{"mode", "action"})

	ReplicationPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsql_replication_push_total",
		Help: "Replication push batches sent to the primary, by outcome.",
	}, []string{"outcome"})

	ReplicationPushEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libsql_replication_push_entries_total",
		Help: "Journal entries acknowledged by the primary.",
	})

	ReplicationPullFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libsql_replication_pull_frames_total",
		Help: "Frames pulled from the primary and applied locally.",
	})

	ReplicationPayloadBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "libsql_replication_payload_bytes",
		Help:    "Compressed replication payload sizes, by direction (push, pull).",
		Buckets: prometheus.ExponentialBuckets(64, 4, 10), // 64B to ~16MB
	}, []string{"direction"})

	ServerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "libsql_server_requests_total",
		Help: "Requests handled by the server, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	ServerOpenStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "libsql_server_open_streams",
		Help: "Pipeline streams currently holding a database connection.",
	})
)
