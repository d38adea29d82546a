package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStatsStore struct {
	mu        sync.Mutex
	samples   []graph.StatsSample
	cutoffs   []time.Time
	insertErr error
}

func (m *memStatsStore) InsertStatsSample(ctx context.Context, s graph.StatsSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *memStatsStore) PruneStatsSamples(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

func (m *memStatsStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func TestStatsSampler_Run(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	store := &memStatsStore{}
	g := testGraph(t)

	s := NewStatsSampler(g, store, 10*time.Second, time.Hour, clock)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	clock.BlockUntilTickers(1)
	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, time.Millisecond)
	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, start.Add(10*time.Second), store.samples[0].Time)
	assert.Equal(t, 6, store.samples[1].KeyFrames)
	require.Len(t, store.cutoffs, 2)
	assert.Equal(t, start.Add(20*time.Second).Add(-time.Hour), store.cutoffs[1])
}

func TestStatsSampler_InsertFailureLogged(t *testing.T) {
	logs, restore := monitoring.Capture()
	defer restore()

	store := &memStatsStore{insertErr: errors.New("read-only")}
	s := NewStatsSampler(testGraph(t), store, time.Second, time.Hour, timeutil.NewMockClock(time.Now()))
	s.Sample(context.Background())

	assert.True(t, logs.Contains("stats sampler: insert failed: read-only"))
	assert.Empty(t, store.cutoffs)
}

func TestStatsSampler_Disabled(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	s := NewStatsSampler(testGraph(t), &memStatsStore{}, 0, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestRegisterGraphMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := testGraph(t)
	require.NoError(t, RegisterGraphMetrics(reg, g))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, 6.0, values["slam_viewer_graph_keyframes"])
	assert.Equal(t, 6.0, values["slam_viewer_graph_resolved_constraints"])
	assert.Equal(t, 144.0, values["slam_viewer_graph_points_total"])

	assert.Error(t, RegisterGraphMetrics(reg, g))
}
