package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	feedServed  *prometheus.CounterVec
	feedReloads *prometheus.CounterVec
	feedRecords prometheus.Gauge
	likeSaves   *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobRemoved  *prometheus.CounterVec
}

// newMetrics uses its own registry so several servers can coexist in tests.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webinars_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webinars_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		feedServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webinars_feed_served_total",
			Help: "Feed responses by encoding (identity, br, not_modified).",
		}, []string{"encoding"}),
		feedReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webinars_feed_reloads_total",
			Help: "Feed cache reloads by result.",
		}, []string{"result"}),
		feedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webinars_feed_records",
			Help: "Records in the cached feed.",
		}),
		likeSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webinars_like_saves_total",
			Help: "Like snapshot saves by result (ok, rejected, error).",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webinars_cleanup_runs_total",
			Help: "Maintenance job runs by action and result.",
		}, []string{"action", "result"}),
		jobRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webinars_cleanup_removed_records_total",
			Help: "Records removed by maintenance jobs.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.feedServed,
		m.feedReloads,
		m.feedRecords,
		m.likeSaves,
		m.jobRuns,
		m.jobRemoved,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument records count and latency per matched route pattern, which
// keeps label cardinality bounded.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
