// Package metrics provides Prometheus metrics for entitystore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for entitystore
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	IndexWritesTotal       *prometheus.CounterVec
	DocumentsIndexedTotal  prometheus.Counter
	LookupMissesTotal      prometheus.Counter

	ServerStartTime time.Time

	factory promauto.Factory
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
		factory:         promauto.With(reg),
	}

	// gRPC request metrics
	m.GrpcRequestsTotal = m.factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitystore_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = m.factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitystore_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = m.factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "entitystore_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Store metrics
	m.StoreOperationsTotal = m.factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitystore_store_operations_total",
			Help: "Total number of entity store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = m.factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitystore_store_operation_duration_seconds",
			Help:    "Duration of entity store operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	m.IndexWritesTotal = m.factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitystore_index_writes_total",
			Help: "Total number of ranked index entries added or removed",
		},
		[]string{"action"},
	)

	m.DocumentsIndexedTotal = m.factory.NewCounter(
		prometheus.CounterOpts{
			Name: "entitystore_documents_indexed_total",
			Help: "Total number of search documents committed",
		},
	)

	m.LookupMissesTotal = m.factory.NewCounter(
		prometheus.CounterOpts{
			Name: "entitystore_lookup_connection_misses_total",
			Help: "Lookups answered as not found because the store was unreachable",
		},
	)

	// Server metrics
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "entitystore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// WatchDocumentCount exposes the size of the search index
func (m *Metrics) WatchDocumentCount(count func() (uint64, error)) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "entitystore_search_documents",
			Help: "Number of documents in the search index",
		},
		func() float64 {
			n, err := count()
			if err != nil {
				return -1
			}
			return float64(n)
		},
	)
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// StoreOperation records an entity store operation
func (m *Metrics) StoreOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IndexWrites records ranked index maintenance
func (m *Metrics) IndexWrites(action string, n int) {
	if n > 0 {
		m.IndexWritesTotal.WithLabelValues(action).Add(float64(n))
	}
}

// DocumentsIndexed records committed search documents
func (m *Metrics) DocumentsIndexed(n int) {
	if n > 0 {
		m.DocumentsIndexedTotal.Add(float64(n))
	}
}

// LookupConnectionMiss records a lookup answered as not found on a connection failure
func (m *Metrics) LookupConnectionMiss() {
	m.LookupMissesTotal.Inc()
}
