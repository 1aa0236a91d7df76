// Package metrics counts what a sync run did and exports the counters in
// Prometheus text format, for cron-driven runs scraped through
// node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kemonosync"

// Recorder holds the counters of one process
type Recorder struct {
	registry *prometheus.Registry

	pages       *prometheus.CounterVec
	posts       *prometheus.CounterVec
	metadata    *prometheus.CounterVec
	downloads   *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	rateLimited prometheus.Counter
	partitions  *prometheus.CounterVec
	lastRun     prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Post listing pages fetched from the upstream.",
		}, []string{"service"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_enumerated_total",
			Help:      "Posts returned by the upstream listing.",
		}, []string{"service"}),
		metadata: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_written_total",
			Help:      "Post metadata documents written to disk.",
		}, []string{"service"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Attachment tasks by final status.",
		}, []string{"service", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written for downloaded attachments.",
		}, []string{"service"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_batches_total",
			Help:      "Download batches aborted by an upstream 429.",
		}),
		partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_total",
			Help:      "Creator/service syncs by result.",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	r.registry.MustRegister(
		r.pages, r.posts, r.metadata, r.downloads,
		r.bytes, r.rateLimited, r.partitions, r.lastRun,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// PageFetched counts one listing page and the posts on it
func (r *Recorder) PageFetched(service string, posts int) {
	r.pages.WithLabelValues(service).Inc()
	r.posts.WithLabelValues(service).Add(float64(posts))
}

// MetadataWritten counts a newly written metadata document
func (r *Recorder) MetadataWritten(service string) {
	r.metadata.WithLabelValues(service).Inc()
}

// Attachment counts one task outcome
func (r *Recorder) Attachment(service, status string, size int64) {
	r.downloads.WithLabelValues(service, status).Inc()
	if size > 0 {
		r.bytes.WithLabelValues(service).Add(float64(size))
	}
}

// RateLimited counts an aborted batch
func (r *Recorder) RateLimited() {
	r.rateLimited.Inc()
}

// Partition counts a finished creator/service sync
func (r *Recorder) Partition(result string) {
	r.partitions.WithLabelValues(result).Inc()
}

// Finish stamps the end of the run
func (r *Recorder) Finish(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes all counters to path atomically
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
