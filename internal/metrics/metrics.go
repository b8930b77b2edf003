// Package metrics exposes Prometheus collectors for the guide crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

var (
	epgFetchTotal              *prometheus.CounterVec
	epgChannelsTotal           *prometheus.CounterVec
	epgEventsUpsertedTotal     prometheus.Counter
	epgRunsTotal               *prometheus.CounterVec
	epgRunDurationSeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		epgFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epg_fetch_total",
				Help: "Total number of remote fetches, labeled by resource and outcome.",
			},
			[]string{"resource", "outcome"},
		)

		epgChannelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epg_channels_total",
				Help: "Total number of channels visited, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		epgEventsUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "epg_events_upserted_total",
				Help: "Total number of events written to persistence.",
			},
		)

		epgRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epg_runs_total",
				Help: "Total number of crawl runs, labeled by status.",
			},
			[]string{"status"},
		)

		epgRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "epg_run_duration_seconds",
				Help:    "Histogram of crawl run durations.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400, 3600},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Recorder forwards crawl observations to the package collectors.
type Recorder struct{}

var _ crawler.Recorder = (*Recorder)(nil)

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() *Recorder {
	Init()
	return &Recorder{}
}

// ObserveFetch counts one fetch of the given resource.
func (*Recorder) ObserveFetch(resource, outcome string) {
	epgFetchTotal.WithLabelValues(resource, outcome).Inc()
}

// ObserveChannel counts one visited channel.
func (*Recorder) ObserveChannel(outcome string) {
	epgChannelsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEventUpserted counts one persisted event.
func (*Recorder) ObserveEventUpserted() {
	epgEventsUpsertedTotal.Inc()
}

// ObserveRun counts a finished run and its duration.
func (*Recorder) ObserveRun(status string, duration time.Duration) {
	epgRunsTotal.WithLabelValues(status).Inc()
	epgRunDurationSeconds.Observe(duration.Seconds())
}
