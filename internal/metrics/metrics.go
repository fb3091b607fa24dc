// Package metrics exposes scheduler counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bed_scheduler"

// Profile outcomes.
const (
	ProfileOK      = "ok"
	ProfileFailed  = "failed"
	ProfileInvalid = "invalid"
)

// Combined write results.
const (
	WriteOK      = "ok"
	WriteFailed  = "failed"
	WriteSkipped = "skipped"
	WriteDryRun  = "dry_run"
)

// Collector holds every scheduler metric. All methods are safe on a nil
// receiver so components can run without metrics.
type Collector struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	profiles        *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	writes          *prometheus.CounterVec
	retries         *prometheus.CounterVec
	statusFallbacks *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates a Collector on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scheduler runs by result (ok, aborted).",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full scheduler run.",
			Buckets:   prometheus.DefBuckets,
		}),
		profiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_processed_total",
			Help:      "Profiles processed by outcome (" + ProfileOK + ", " + ProfileFailed + ", " + ProfileInvalid + ").",
		}, []string{"outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Side decisions by role, stage and command kind.",
		}, []string{"role", "stage", "command"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_writes_total",
			Help:      "Combined device writes by result (" + WriteOK + ", " + WriteFailed + ", " + WriteSkipped + ", " + WriteDryRun + ").",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried remote operations.",
		}, []string{"operation"}),
		statusFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_fallbacks_total",
			Help:      "Heating status reads that degraded to the default.",
		}, []string{"side"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Credential refreshes by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}

	c.registry.MustRegister(
		c.runs,
		c.runDuration,
		c.profiles,
		c.decisions,
		c.writes,
		c.retries,
		c.statusFallbacks,
		c.refreshes,
		c.httpRequests,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RunFinished records a completed or aborted run.
func (c *Collector) RunFinished(d time.Duration, aborted bool) {
	if c == nil {
		return
	}
	result := "ok"
	if aborted {
		result = "aborted"
	}
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(d.Seconds())
}

// ProfileProcessed records one profile's outcome, one of the Profile* values.
func (c *Collector) ProfileProcessed(outcome string) {
	if c == nil {
		return
	}
	c.profiles.WithLabelValues(outcome).Inc()
}

// Decision records one side decision.
func (c *Collector) Decision(role, stage, command string) {
	if c == nil {
		return
	}
	if stage == "" {
		stage = "none"
	}
	c.decisions.WithLabelValues(role, stage, command).Inc()
}

// Write records a combined write outcome, one of the Write* values.
func (c *Collector) Write(result string) {
	if c == nil {
		return
	}
	c.writes.WithLabelValues(result).Inc()
}

// Retry records a retried operation.
func (c *Collector) Retry(operation string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(operation).Inc()
}

// StatusFallback records a status read that fell back to the default.
func (c *Collector) StatusFallback(side string) {
	if c == nil {
		return
	}
	c.statusFallbacks.WithLabelValues(side).Inc()
}

// Refresh records a credential refresh attempt.
func (c *Collector) Refresh(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.refreshes.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests to next under route.
func (c *Collector) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if c != nil {
			c.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	})
}
