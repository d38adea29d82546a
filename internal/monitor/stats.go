package monitor

import (
	"context"
	"time"

	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsStore persists stats samples. *sqlite.DB implements it.
type StatsStore interface {
	InsertStatsSample(ctx context.Context, s graph.StatsSample) error
	PruneStatsSamples(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatsSampler periodically records the graph's aggregate counters.
type StatsSampler struct {
	graph     *graph.KeyFrameGraph
	store     StatsStore
	interval  time.Duration
	retention time.Duration
	clock     timeutil.Clock
}

// NewStatsSampler returns a sampler writing to store every interval and
// deleting samples older than retention. A zero retention keeps everything.
func NewStatsSampler(g *graph.KeyFrameGraph, store StatsStore, interval, retention time.Duration, clock timeutil.Clock) *StatsSampler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StatsSampler{graph: g, store: store, interval: interval, retention: retention, clock: clock}
}

// Run samples until ctx is cancelled. Store failures are logged.
func (s *StatsSampler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		monitoring.Logf("stats sampler disabled")
		<-ctx.Done()
		return nil
	}
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.Sample(ctx)
		}
	}
}

// Sample records one sample now.
func (s *StatsSampler) Sample(ctx context.Context) {
	now := s.clock.Now().UTC()
	sample := graph.StatsSample{Time: now, Stats: s.graph.Stats()}
	if err := s.store.InsertStatsSample(ctx, sample); err != nil {
		monitoring.Logf("stats sampler: insert failed: %v", err)
		return
	}
	if s.retention > 0 {
		if _, err := s.store.PruneStatsSamples(ctx, now.Add(-s.retention)); err != nil {
			monitoring.Logf("stats sampler: prune failed: %v", err)
		}
	}
}

// RegisterGraphMetrics exposes the graph's aggregate counters as gauges.
func RegisterGraphMetrics(reg prometheus.Registerer, g *graph.KeyFrameGraph) error {
	gauge := func(name, help string, value func(graph.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "slam_viewer_graph_" + name,
			Help: help,
		}, func() float64 {
			return float64(value(g.Stats()))
		})
	}
	collectors := []prometheus.Collector{
		gauge("keyframes", "Keyframes in the graph.", func(s graph.Stats) int { return s.KeyFrames }),
		gauge("constraints", "Constraints in the current set.", func(s graph.Stats) int { return s.Constraints }),
		gauge("resolved_constraints", "Constraints with both endpoints resolved.", func(s graph.Stats) int { return s.ResolvedConstraints }),
		gauge("points_total", "Valid depth pixels across all keyframes.", func(s graph.Stats) int { return s.TotalPoints }),
		gauge("points_displayed", "Points passing the display filter.", func(s graph.Stats) int { return s.VisiblePoints }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
