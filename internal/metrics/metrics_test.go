package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveApplied(2, 3, time.Millisecond)
	m.ObserveApplied(2, 0, time.Millisecond)
	m.ObserveDropped(2, ReasonStale)
	m.ObserveResync(2, "origin")
	m.ObserveCompaction(2)
	m.TrimHook("ot:ops", 1, 5, 9)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Applied.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("2", ReasonStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resyncs.WithLabelValues("2", "origin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compactions.WithLabelValues("2")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Trimmed.WithLabelValues("1")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveApplied(0, 1, time.Second)
	m.ObserveDropped(0, ReasonDecode)
	m.ConnOpened()
	m.TrimHook("x", 0, 1, 2)
	StorageHook{}.ObserveBatchCommit(time.Second, 1, 1)
}

func TestConnections(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
}
