package graph

import (
	"time"

	"github.com/banshee-data/slam.viewer/internal/monitoring"
)

// Stats are the aggregate diagnostic counters of the graph.
type Stats struct {
	TotalPoints         int `json:"total_points"`
	VisiblePoints       int `json:"visible_points"`
	KeyFrames           int `json:"keyframes"`
	Constraints         int `json:"constraints"`
	ResolvedConstraints int `json:"resolved_constraints"`
}

// Stats computes the aggregate counters using the current filter.
func (g *KeyFrameGraph) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statsLocked()
}

func (g *KeyFrameGraph) statsLocked() Stats {
	st := Stats{
		KeyFrames:   len(g.ordered),
		Constraints: len(g.constraints),
	}
	for _, kf := range g.ordered {
		kf.CameraPoints(g.settings.Filter)
		st.TotalPoints += kf.TotalPoints
		st.VisiblePoints += kf.DisplayedPoints
	}
	for _, c := range g.constraints {
		if c.Resolved() {
			st.ResolvedConstraints++
		}
	}
	return st
}

// RequestPrintNumbers asks the next draw pass to log the aggregate counters.
func (g *KeyFrameGraph) RequestPrintNumbers() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.printPending = true
}

func (g *KeyFrameGraph) printNumbersLocked() {
	st := g.statsLocked()
	monitoring.Logf("Have %d points, %d keyframes, %d constraints. Displaying %d points.",
		st.TotalPoints, st.KeyFrames, st.Constraints, st.VisiblePoints)
}

// StatsSample is a timestamped Stats, as stored by the stats history.
type StatsSample struct {
	Time time.Time `json:"time"`
	Stats
}
