// Package metrics provides Prometheus metrics for reldb
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the storage engine
type Metrics struct {
	// Registry is this Metrics instance's own collector registry, not the
	// global prometheus.DefaultRegisterer, so that independent NewMetrics()
	// calls (one per engine instance, including in tests) never collide
	// over a duplicate collector registration.
	Registry *prometheus.Registry

	// Buffer pool metrics
	BufferPoolHitsTotal      prometheus.Counter
	BufferPoolMissesTotal    prometheus.Counter
	BufferPoolEvictionsTotal prometheus.Counter
	BufferPoolPagesInUse     prometheus.Gauge

	// Page I/O metrics
	PageIODuration *prometheus.HistogramVec

	// B+ tree metrics
	BtreeOperationsTotal *prometheus.CounterVec

	// Table metrics
	TableRowsTotal *prometheus.GaugeVec

	// Executor metrics
	OperatorRowsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics for the engine
// against a fresh, private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{Registry: registry}

	m.BufferPoolHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "reldb_buffer_pool_hits_total",
			Help: "Total number of buffer pool hits",
		},
	)

	m.BufferPoolMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "reldb_buffer_pool_misses_total",
			Help: "Total number of buffer pool misses",
		},
	)

	m.BufferPoolEvictionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "reldb_buffer_pool_evictions_total",
			Help: "Total number of buffer pool frame evictions",
		},
	)

	m.BufferPoolPagesInUse = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "reldb_buffer_pool_pages_in_use",
			Help: "Number of pinned pages currently resident in the buffer pool",
		},
	)

	m.PageIODuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reldb_page_io_duration_seconds",
			Help:    "Duration of page I/O operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	m.BtreeOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reldb_btree_operations_total",
			Help: "Total number of B+ tree operations",
		},
		[]string{"op"},
	)

	m.TableRowsTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reldb_table_rows_total",
			Help: "Approximate row count per table",
		},
		[]string{"table"},
	)

	m.OperatorRowsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reldb_operator_rows_total",
			Help: "Total number of rows produced per execution operator",
		},
		[]string{"operator"},
	)

	return m
}

// RecordPageIO records a page I/O operation's latency, where op is "read" or "write".
func (m *Metrics) RecordPageIO(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PageIODuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordBufferHit records a buffer pool cache hit.
func (m *Metrics) RecordBufferHit() {
	if m == nil {
		return
	}
	m.BufferPoolHitsTotal.Inc()
}

// RecordBufferMiss records a buffer pool cache miss.
func (m *Metrics) RecordBufferMiss() {
	if m == nil {
		return
	}
	m.BufferPoolMissesTotal.Inc()
}

// RecordBufferEviction records a frame eviction.
func (m *Metrics) RecordBufferEviction() {
	if m == nil {
		return
	}
	m.BufferPoolEvictionsTotal.Inc()
}

// SetPagesInUse sets the current count of pinned pages.
func (m *Metrics) SetPagesInUse(n int) {
	if m == nil {
		return
	}
	m.BufferPoolPagesInUse.Set(float64(n))
}

// RecordBtreeOp records a B+ tree operation, where op is one of
// "search", "insert", "delete", "split", "merge".
func (m *Metrics) RecordBtreeOp(op string) {
	if m == nil {
		return
	}
	m.BtreeOperationsTotal.WithLabelValues(op).Inc()
}

// SetTableRows sets the approximate row count for a table.
func (m *Metrics) SetTableRows(table string, rows int) {
	if m == nil {
		return
	}
	m.TableRowsTotal.WithLabelValues(table).Set(float64(rows))
}

// RecordOperatorRows records rows produced by an execution operator.
func (m *Metrics) RecordOperatorRows(operator string, n int) {
	if m == nil {
		return
	}
	m.OperatorRowsTotal.WithLabelValues(operator).Add(float64(n))
}
