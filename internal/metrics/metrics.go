// Package metrics defines the Prometheus collectors of a coedit process.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coedit"

// Drop reasons.
const (
	ReasonInvalid = "invalid"
	ReasonDecode  = "decode"
	ReasonApply   = "apply"
	ReasonStale   = "stale"
	ReasonStore   = "store"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Applied        *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	Resyncs        *prometheus.CounterVec
	Compactions    *prometheus.CounterVec
	Trimmed        *prometheus.CounterVec
	TransformDepth prometheus.Histogram
	EntryLatency   *prometheus.HistogramVec
	BatchCommit    prometheus.Histogram
	StorageRead    prometheus.Histogram
	Connections    prometheus.Gauge
	Rejected       *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Applied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "applied_total",
			Help: "Operations applied to documents.",
		}, []string{"shard"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "dropped_total",
			Help: "Stream entries dropped without being applied.",
		}, []string{"shard", "reason"}),
		Resyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "resyncs_total",
			Help: "Resync events published.",
		}, []string{"shard", "target"}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "compactions_total",
			Help: "History compactions.",
		}, []string{"shard"}),
		Trimmed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "trimmed_total",
			Help: "Consumed stream entries removed.",
		}, []string{"shard"}),
		TransformDepth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker", Name: "transform_depth",
			Help:    "Concurrent operations an incoming operation was transformed against.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 512},
		}),
		EntryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker", Name: "entry_seconds",
			Help:    "Time to process one stream entry.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"shard"}),
		BatchCommit: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "batch_commit_seconds",
			Help:    "Pebble batch commit latency.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		StorageRead: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "storage", Name: "read_seconds",
			Help:    "Pebble read latency.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "websocket_connections",
			Help: "Open websocket connections.",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "collab", Name: "rejected_total",
			Help: "Client actions refused before enqueue.",
		}, []string{"reason"}),
	}
}

func shardLabel(shard int) string { return strconv.Itoa(shard) }

func (m *Metrics) ObserveApplied(shard, depth int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Applied.WithLabelValues(shardLabel(shard)).Inc()
	m.TransformDepth.Observe(float64(depth))
	m.EntryLatency.WithLabelValues(shardLabel(shard)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveDropped(shard int, reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(shardLabel(shard), reason).Inc()
}

// ObserveResync counts a resync; target is "origin" or "all".
func (m *Metrics) ObserveResync(shard int, target string) {
	if m == nil {
		return
	}
	m.Resyncs.WithLabelValues(shardLabel(shard), target).Inc()
}

func (m *Metrics) ObserveCompaction(shard int) {
	if m == nil {
		return
	}
	m.Compactions.WithLabelValues(shardLabel(shard)).Inc()
}

func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

// ConnOpened and ConnClosed track websocket connections.
func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// TrimHook counts entries removed from a pebble shard log. It matches
// eventlog.TrimHook.
func (m *Metrics) TrimHook(_ string, shard uint32, minSeq, maxSeq uint64) {
	if m == nil || maxSeq < minSeq {
		return
	}
	m.Trimmed.WithLabelValues(strconv.FormatUint(uint64(shard), 10)).Add(float64(maxSeq - minSeq + 1))
}

// StorageHook adapts Metrics to the pebble wrapper's MetricsHook.
type StorageHook struct{ M *Metrics }

func (h StorageHook) ObserveWrite(elapsed time.Duration, _ int) {
	if h.M != nil {
		h.M.BatchCommit.Observe(elapsed.Seconds())
	}
}

func (h StorageHook) ObserveRead(elapsed time.Duration, _ int) {
	if h.M != nil {
		h.M.StorageRead.Observe(elapsed.Seconds())
	}
}

func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, _ int, _ int) {
	if h.M != nil {
		h.M.BatchCommit.Observe(elapsed.Seconds())
	}
}
