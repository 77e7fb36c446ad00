// Package metrics defines the Prometheus collectors exported by the tree server.
package metrics

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripsync"

// Metrics holds the server's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
	subscriptions prometheus.Gauge
	mutations     *prometheus.CounterVec
	documents     prometheus.Gauge
}

// New creates and registers all collectors, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPCs handled, by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Unary RPC latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Subscribe streams currently open.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Tree mutations applied, by operation and collection.",
		}, []string{"op", "collection"}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_documents",
			Help:      "Documents loaded from storage into the tree.",
		}),
	}

	m.registry.MustRegister(
		m.rpcRequests,
		m.rpcDuration,
		m.subscriptions,
		m.mutations,
		m.documents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRPC records one finished RPC. duration is ignored for streams (zero).
func (m *Metrics) ObserveRPC(procedure, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	if duration > 0 {
		m.rpcDuration.WithLabelValues(procedure).Observe(duration.Seconds())
	}
}

// SubscriptionOpened increments the open stream gauge.
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

// SubscriptionClosed decrements the open stream gauge.
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

// DocumentLoaded increments the loaded document gauge.
func (m *Metrics) DocumentLoaded() {
	if m == nil {
		return
	}
	m.documents.Inc()
}

// MutationApplied counts a write, append or delete at treePath.
func (m *Metrics) MutationApplied(op, treePath string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, CollectionOf(treePath)).Inc()
}

// CollectionOf returns the collection segment of trips/{doc}/{collection}/...,
// or "document" for paths at or above a document root.
func CollectionOf(treePath string) string {
	parts := strings.Split(strings.Trim(path.Clean("/"+treePath), "/"), "/")
	if len(parts) < 3 {
		return "document"
	}
	return parts[2]
}
