package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one process. Each instance owns its
// registry so runs and tests do not share state.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PagesTotal      *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	ArticlesSaved   prometheus.Counter
	Duplicates      prometheus.Counter
	BatchesFlushed  prometheus.Counter
	SitemapsFetched *prometheus.CounterVec
	ArchiveArticles prometheus.Gauge
	ArchiveFailures prometheus.Gauge
	Watermark       prometheus.Gauge
	LastRunSuccess  prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grabeklis_pages_total",
			Help: "Article pages processed, by outcome.",
		}, []string{"outcome"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "grabeklis_fetch_duration_seconds",
			Help:    "Download latency of article pages.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ArticlesSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "grabeklis_articles_saved_total",
			Help: "Articles accepted into the run buffer.",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "grabeklis_duplicates_total",
			Help: "Articles dropped because their URL was already seen.",
		}),
		BatchesFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "grabeklis_batches_flushed_total",
			Help: "Batch files written.",
		}),
		SitemapsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grabeklis_sitemaps_total",
			Help: "Sitemap documents requested, by outcome.",
		}, []string{"outcome"}),
		ArchiveArticles: f.NewGauge(prometheus.GaugeOpts{
			Name: "grabeklis_archive_articles",
			Help: "Articles in the success archive.",
		}),
		ArchiveFailures: f.NewGauge(prometheus.GaugeOpts{
			Name: "grabeklis_archive_failures",
			Help: "Records in the failure archive.",
		}),
		Watermark: f.NewGauge(prometheus.GaugeOpts{
			Name: "grabeklis_watermark_timestamp_seconds",
			Help: "Latest archived publish date, as a Unix timestamp.",
		}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "grabeklis_last_run_success",
			Help: "1 if the last run finalized without error.",
		}),
	}
}

// WithProcessCollectors adds Go runtime and process collectors, for long-lived servers.
func (m *Metrics) WithProcessCollectors() *Metrics {
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WriteToTextfile writes the registry in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
