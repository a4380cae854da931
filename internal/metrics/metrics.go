// Package metrics exposes Prometheus metrics for stitches and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the stitching service.
type Metrics struct {
	// Stitch metrics
	StitchesTotal   *prometheus.CounterVec
	StitchDuration  prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	ClipsPerStitch  prometheus.Histogram
	OutputDuration  prometheus.Histogram
	StitchesRunning prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StitchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tableread_stitches_total",
			Help: "Total number of stitches by outcome",
		}, []string{"outcome"}),
		StitchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tableread_stitch_duration_seconds",
			Help:    "Wall time of a stitch from start to result",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tableread_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~30s
		}, []string{"stage"}),
		ClipsPerStitch: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tableread_clips_per_stitch",
			Help:    "Number of clips in a stitch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		}),
		OutputDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tableread_output_duration_seconds",
			Help:    "Length of finished recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		StitchesRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "tableread_stitch_jobs_running",
			Help: "Number of stitch jobs currently running or waiting for the stitcher",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tableread_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tableread_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// StageCompleted records the duration of a finished pipeline stage.
func (m *Metrics) StageCompleted(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// StitchFinished records the outcome of a stitch.
func (m *Metrics) StitchFinished(outcome string, clips int, d time.Duration, outputSeconds float64) {
	m.StitchesTotal.WithLabelValues(outcome).Inc()
	m.StitchDuration.Observe(d.Seconds())
	m.ClipsPerStitch.Observe(float64(clips))
	if outcome == "success" {
		m.OutputDuration.Observe(outputSeconds)
	}
}

// JobStarted increments the running job gauge.
func (m *Metrics) JobStarted() { m.StitchesRunning.Inc() }

// JobDone decrements the running job gauge.
func (m *Metrics) JobDone() { m.StitchesRunning.Dec() }

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
