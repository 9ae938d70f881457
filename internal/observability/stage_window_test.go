package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageStartToOnline, 500)
	w.Observe(StageStartToOnline, 700)
	w.Observe(StageStartToOnline, 900)
	w.ObserveIndicator(IndicatorSelfTriggerSuppressed)
	w.ObserveIndicator(IndicatorSelfTriggerSuppressed)
	w.ObserveIndicator(IndicatorCaptureLost)

	snap := w.Snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	assert.Equal(t, StageStartToOnline, s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 900.0, s.LastMS)
	assert.Equal(t, 700.0, s.AvgMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Equal(t, 900.0, s.P95MS)
	assert.Equal(t, 900.0, s.MaxMS)

	assert.Equal(t, []Indicator{
		{Name: IndicatorCaptureLost, Count: 1},
		{Name: IndicatorSelfTriggerSuppressed, Count: 2},
	}, snap.Indicators)
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	w.Observe("x", 1)
	w.Observe("x", 2)
	w.Observe("x", 3)

	snap := w.Snapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 2, snap.Stages[0].Samples)
	assert.Equal(t, 3.0, snap.Stages[0].LastMS)
	assert.Equal(t, 2.5, snap.Stages[0].AvgMS)
	assert.Equal(t, 3.0, snap.Stages[0].MaxMS)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveConnectLatency(time.Second)
	m.ObserveIndicator("noop")
	assert.Empty(t, m.SnapshotStages().Stages)
}

func TestMetricsConnectLatencyFeedsWindow(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")
	m.ObserveConnectLatency(120 * time.Millisecond)

	snap := m.SnapshotStages()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, StageStartToOnline, snap.Stages[0].Stage)
	assert.Equal(t, 120.0, snap.Stages[0].LastMS)
}
