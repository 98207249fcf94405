package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch results used as the label of DocumentFetches
const (
	FetchHit            = "hit"
	FetchOK             = "ok"
	FetchHTTPError      = "http_error"
	FetchTransportError = "transport_error"
	FetchParseError     = "parse_error"
)

var (
	DocumentFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdb_document_fetches_total",
			Help: "Total number of document lookups by result",
		},
		[]string{"result"},
	)

	DocumentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cmdb_document_fetch_duration_seconds",
			Help:    "Duration of remote document fetches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	DocumentCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdb_document_cache_entries",
			Help: "Current number of entries in the document cache",
		},
	)

	Builds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdb_builds_total",
			Help: "Total number of CMDB builds by kind and result",
		},
		[]string{"kind", "result"},
	)

	BuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdb_build_duration_seconds",
			Help:    "Duration of CMDB builds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)

	InventoryHosts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cmdb_inventory_hosts",
			Help: "Number of hosts in the current snapshot per inventory",
		},
		[]string{"inventory"},
	)

	InventoryGroups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cmdb_inventory_groups",
			Help: "Number of groups in the current snapshot per inventory",
		},
		[]string{"inventory"},
	)

	Ready = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdb_ready",
			Help: "Whether a snapshot has been built (1) or not (0)",
		},
	)
)
