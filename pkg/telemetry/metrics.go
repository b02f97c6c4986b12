// Package telemetry exposes prometheus counters for the sync engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SendsTotal counts messages accepted by the send pipeline.
	SendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_sends_total",
		Help: "Messages accepted for sending.",
	})

	// SendFailuresTotal counts sends that exhausted retries.
	SendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_send_failures_total",
		Help: "Sends that ended in error status after retries.",
	})

	// SendRetriesTotal counts individual retry attempts.
	SendRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_send_retries_total",
		Help: "Remote write retry attempts.",
	})

	// MergesTotal counts merge passes executed.
	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_merges_total",
		Help: "Merge passes executed.",
	})

	// MergesSuppressedTotal counts merge passes producing no change.
	MergesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_merges_suppressed_total",
		Help: "Merge passes suppressed because nothing changed.",
	})

	// SnapshotsTotal counts remote snapshots received.
	SnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_snapshots_total",
		Help: "Remote snapshots received across all subscriptions.",
	})

	// StatusBatchesTotal counts delivered/read batch updates.
	StatusBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_status_batches_total",
		Help: "Batched delivered/read updates sent to the remote.",
	})

	// PrunedMessagesTotal counts rows removed by retention.
	PrunedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgsync_pruned_messages_total",
		Help: "Local rows removed by the retention job.",
	})

	// SendDuration observes end-to-end remote write latency.
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "msgsync_send_duration_seconds",
		Help:    "Remote dual write latency including retries.",
		Buckets: prometheus.DefBuckets,
	})
)
