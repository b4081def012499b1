// Package metrics holds the Prometheus collectors shared by the batch jobs
// and the HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RatingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_rating_runs_total",
			Help: "Rating runs by outcome.",
		},
		[]string{"outcome"},
	)

	RatingRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engagement_rating_run_duration_seconds",
			Help:    "Wall time of a full rating run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	EventsRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_session_events_read_total",
			Help: "Session events read from the source table.",
		},
	)

	ProfilesWritten = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engagement_profiles_written",
			Help: "Profiles written by the last successful run.",
		},
	)

	SegmentSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engagement_segment_visitors",
			Help: "Visitors per segment after the last successful run.",
		},
		[]string{"segment"},
	)

	TablesLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_loader_tables_total",
			Help: "Tables visited by the loader by outcome.",
		},
		[]string{"outcome"},
	)

	RowsReloaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_reload_rows_total",
			Help: "Rows bulk-loaded from CSV per table.",
		},
		[]string{"table"},
	)
)

// Registry is the private registry every collector above is registered on
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		RatingRuns,
		RatingRunDuration,
		EventsRead,
		ProfilesWritten,
		SegmentSize,
		TablesLoaded,
		RowsReloaded,
	)
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
