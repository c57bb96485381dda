package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "place_indexer_build_info",
		Help: "Build information of the place indexer",
	},
		[]string{"version", "commit", "date"},
	)

	TransactionsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_transactions_applied_total",
		Help: "Total number of transactions applied to the materialized view",
	},
		[]string{"source"},
	)

	TransactionsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_transactions_skipped_total",
		Help: "Total number of transactions skipped because they were already applied",
	},
		[]string{"source"},
	)

	ApplyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_apply_errors_total",
		Help: "Total number of failed apply transactions",
	},
		[]string{"source"},
	)

	EventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_events_applied_total",
		Help: "Total number of domain events applied, by type",
	},
		[]string{"source", "type"},
	)

	BackfillPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_backfill_pages_total",
		Help: "Total number of signature pages processed by backfill",
	},
		[]string{"source"},
	)

	SubscriberResubscribesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_subscriber_resubscribes_total",
		Help: "Total number of times a live log subscription was re-established",
	},
		[]string{"source"},
	)
)
