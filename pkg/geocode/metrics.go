package geocode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "place_indexer_geocode_lookups_total",
		Help: "Total number of reverse-geocode lookup attempts",
	},
		[]string{"result"},
	)

	RetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "place_indexer_geocode_retry_queue_depth",
		Help: "Number of targets currently waiting in the retry queue",
	})

	AbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "place_indexer_geocode_abandoned_total",
		Help: "Total number of targets dropped after exhausting retries",
	})

	RepairScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "place_indexer_geocode_repair_scans_total",
		Help: "Total number of repair scans over unresolved rows",
	})
)
