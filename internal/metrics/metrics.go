// Package metrics exposes Prometheus counters for the job lifecycle. Every
// method is safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediagrab"

type Metrics struct {
	registry *prometheus.Registry

	jobsStarted     prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobsActive      prometheus.Gauge
	progressUpdates prometheus.Counter
	jobsSwept       prometheus.Counter
	jobDuration     *prometheus.HistogramVec
	describeSeconds *prometheus.HistogramVec
}

// New registers the collectors on a private registry, so separate instances
// never collide (as they would on the global default registry).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Download jobs accepted.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Download jobs that reached a terminal status.",
		}, []string{"status"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Download runners currently executing.",
		}),
		progressUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_updates_total",
			Help:      "Progress reports applied to jobs.",
		}),
		jobsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_swept_total",
			Help:      "Terminal jobs evicted after their retention period.",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from runner start to terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),
		describeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "describe_duration_seconds",
			Help:      "Latency of metadata lookups.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.jobsStarted,
		m.jobsFinished,
		m.jobsActive,
		m.progressUpdates,
		m.jobsSwept,
		m.jobDuration,
		m.describeSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsStarted.Inc()
	m.jobsActive.Inc()
}

func (m *Metrics) JobFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(took.Seconds())
}

func (m *Metrics) ProgressUpdated() {
	if m == nil {
		return
	}
	m.progressUpdates.Inc()
}

func (m *Metrics) JobsSwept(n int) {
	if m == nil {
		return
	}
	m.jobsSwept.Add(float64(n))
}

func (m *Metrics) DescribeObserved(took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.describeSeconds.WithLabelValues(result).Observe(took.Seconds())
}
