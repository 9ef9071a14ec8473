// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unknownSite = "unknown"

// Recorder records scraper metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	fetchesTotal         *prometheus.CounterVec
	fetchedBytesTotal    *prometheus.CounterVec
	fetchDuration        *prometheus.HistogramVec
	activeWorkers        prometheus.Gauge
	frontierDepth        prometheus.Gauge
	enqueueRejectedTotal prometheus.Counter
}

// ObserveFetch records the outcome of one fetch.
func (r *Recorder) ObserveFetch(uri, outcome string, bytesFetched int, d time.Duration) {
	if r == nil {
		return
	}

	site := SanitizeSite(uri)

	r.fetchesTotal.WithLabelValues(site, outcome).Inc()
	r.fetchDuration.WithLabelValues(outcome).Observe(d.Seconds())

	if bytesFetched > 0 {
		r.fetchedBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// WorkerStarted increments the number of live workers.
func (r *Recorder) WorkerStarted() {
	if r == nil {
		return
	}

	r.activeWorkers.Inc()
}

// WorkerStopped decrements the number of live workers.
func (r *Recorder) WorkerStopped() {
	if r == nil {
		return
	}

	r.activeWorkers.Dec()
}

// SetFrontierDepth sets the number of pending uris.
func (r *Recorder) SetFrontierDepth(n int) {
	if r == nil {
		return
	}

	r.frontierDepth.Set(float64(n))
}

// EnqueueRejected counts a batch rejected by the frontier.
func (r *Recorder) EnqueueRejected() {
	if r == nil {
		return
	}

	r.enqueueRejectedTotal.Inc()
}

// NewRecorder registers the scraper collectors to the registerer.
//
// It panics if the collectors are already registered, so every registerer gets at most one recorder.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)

	return &Recorder{
		fetchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webscraper_fetches_total",
				Help: "Total number of fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		),
		fetchedBytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webscraper_fetched_bytes_total",
				Help: "Total number of response body bytes, labeled by site.",
			},
			[]string{"site"},
		),
		fetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webscraper_fetch_duration_seconds",
				Help:    "Histogram of fetch durations, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		),
		activeWorkers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "webscraper_active_workers",
				Help: "Number of live workers.",
			},
		),
		frontierDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "webscraper_frontier_depth",
				Help: "Number of uris waiting in the frontier.",
			},
		),
		enqueueRejectedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "webscraper_enqueue_rejected_total",
				Help: "Total number of batches rejected because the frontier is full.",
			},
		),
	}
}

// SanitizeSite extracts a lowercase hostname from a uri for labeling.
// It returns "unknown" if the uri has no hostname.
func SanitizeSite(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Hostname() == "" {
		return unknownSite
	}

	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the metrics of the gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
