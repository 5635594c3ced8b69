package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trackedObjectsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kenaz_tracked_objects",
		Help: "The number of objects currently tracked by the engine.",
	})

	reindexBacklogGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kenaz_reindex_backlog",
		Help: "The number of objects waiting in the reindex queue.",
	})

	queryDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kenaz_query_duration_seconds",
		Help:    "The duration of completed visibility query traversals.",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	},
		[]string{"query"},
	)

	falloffExponentGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kenaz_falloff_exponent",
		Help: "The current self-tuned throttling falloff exponent.",
	})
)

func instrumentTrackedObjects(count int) {
	trackedObjectsGauge.Set(float64(count))
}

func instrumentReindexBacklog(count int) {
	reindexBacklogGauge.Set(float64(count))
}

func instrumentQueryDuration(query string, d time.Duration) {
	queryDurationHistogram.With(prometheus.Labels{
		"query": query,
	}).Observe(d.Seconds())
}

func instrumentFalloffExponent(falloff float64) {
	falloffExponentGauge.Set(falloff)
}
