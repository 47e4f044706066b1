package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetches_total",
			Help: "Total number of outbound fetches.",
		},
		[]string{"kind", "outcome"}, // kind: page, image; outcome: ok, error, timeout
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_fetch_duration_seconds",
			Help:    "Duration of outbound fetches until headers are received.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_downloads_total",
			Help: "Total number of image persistence attempts.",
		},
		[]string{"outcome"}, // saved, skipped, failed
	)

	DownloadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_downloaded_bytes_total",
			Help: "Total bytes written to the output directory.",
		},
	)

	ProductsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_products_extracted_total",
			Help: "Total number of product records emitted.",
		},
	)

	ImagesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_images_extracted_total",
			Help: "Total number of image references yielded.",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_http_requests_total",
			Help: "Total number of API requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_http_request_duration_seconds",
			Help:    "Duration of API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_active_jobs",
			Help: "Number of harvest jobs currently running.",
		},
	)
)

// ObserveFetch records one outbound fetch.
func ObserveFetch(kind, outcome string, started time.Time) {
	FetchesTotal.WithLabelValues(kind, outcome).Inc()
	FetchDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
