// Package observability holds the process-wide prometheus collectors.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics definitions
var (
	ModulesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pysem_modules_loaded_total",
		Help: "Total number of modules and packages parsed into the module cache.",
	})

	ModuleInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pysem_module_invalidations_total",
		Help: "Total number of module cache entries dropped after a resource change.",
	})

	CircularInference = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pysem_circular_inference_total",
		Help: "Total number of resolutions that re-entered themselves and fell back to unknown.",
	})

	TracedCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pysem_traced_calls_total",
		Help: "Total number of call records received from traced child processes.",
	})

	ParsingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pysem_parsing_seconds",
		Help:    "Time spent parsing a python module.",
		Buckets: prometheus.DefBuckets,
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pysem_watcher_events_total",
		Help: "Total number of change batches delivered by the file watcher.",
	})
)

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
