// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics publishes Prometheus metrics for request dispatch and
// response cache activity. A nil *Recorder is valid and records
// nothing.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome is the terminal outcome of a request.
type Outcome string

const (
	// Success means the request finished successfully.
	Success Outcome = "success"
	// Failure means the request failed.
	Failure Outcome = "failure"
	// Canceled means the request was stopped before it finished.
	Canceled Outcome = "canceled"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheLoad records cache checks made when a request starts.
	CacheLoad CacheOperation = "load"
	// CacheSave records cache writes made after a request succeeds.
	CacheSave CacheOperation = "save"
	// CacheRemove records explicit cache removals.
	CacheRemove CacheOperation = "remove"
)

const (
	// ResultHit labels a cache load that reused a cached response.
	ResultHit = "hit"
	// ResultStored labels a successful cache save.
	ResultStored = "stored"
	// ResultRemoved labels a successful cache removal.
	ResultRemoved = "removed"
	// ResultError labels a failed cache save or removal.
	ResultError = "error"
)

const namespace = "reqcache"

// Recorder publishes Prometheus metrics for dispatcher activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	cacheOperations *prometheus.CounterVec
	inflight        prometheus.Gauge
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil
// a dedicated registry is created, so multiple recorders can coexist
// without conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests finished by the dispatcher.",
	}, []string{"outcome", "from_cache", "category"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Latency distribution of finished requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_operations_total",
		Help:      "Response cache operations.",
	}, []string{"operation", "result"})

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_requests",
		Help:      "Requests currently registered as in flight.",
	})

	reg.MustRegister(requests, latency, cacheOperations, inflight)

	return &Recorder{
		gatherer:        reg,
		handler:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		requests:        requests,
		latency:         latency,
		cacheOperations: cacheOperations,
		inflight:        inflight,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's
// registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records a finished request. The category is the
// failure category name, "none" for successful requests.
func (r *Recorder) ObserveRequest(outcome Outcome, fromCache bool, category string, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(string(outcome))
	r.requests.WithLabelValues(outcomeLabel, strconv.FormatBool(fromCache), normalizeLabel(category)).Inc()
	r.latency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCache records a cache operation. For CacheLoad the result is
// ResultHit or the label of the cache error that caused a miss.
func (r *Recorder) ObserveCache(op CacheOperation, result string) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues(normalizeLabel(string(op)), normalizeLabel(result)).Inc()
}

// SetInFlight sets the number of in-flight requests.
func (r *Recorder) SetInFlight(n int) {
	if r == nil {
		return
	}
	r.inflight.Set(float64(n))
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
