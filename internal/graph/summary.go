package graph

import (
	"github.com/banshee-data/slam.viewer/internal/keyframe"
)

// KeyFrameSummary is a lock-free copy of one keyframe's public state.
type KeyFrameSummary struct {
	ID              uint32     `json:"id"`
	Time            float64    `json:"time"`
	CamToWorld      [7]float32 `json:"cam_to_world"`
	X               float64    `json:"x"`
	Y               float64    `json:"y"`
	Z               float64    `json:"z"`
	Scale           float64    `json:"scale"`
	TotalPoints     int        `json:"total_points"`
	DisplayedPoints int        `json:"displayed_points"`
	PointCloudShown bool       `json:"pointcloud_shown"`
}

// Summaries returns one summary per keyframe in insertion order.
func (g *KeyFrameGraph) Summaries() []KeyFrameSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.ordered)
	out := make([]KeyFrameSummary, 0, n)
	for i, kf := range g.ordered {
		kf.CameraPoints(g.settings.Filter)
		out = append(out, summarize(kf, pointCloudEligible(i, n, g.settings.CutFirstNKf)))
	}
	return out
}

// KeyFrame returns the summary of keyframe id.
func (g *KeyFrameGraph) KeyFrame(id uint32) (KeyFrameSummary, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kf, ok := g.byID[id]
	if !ok {
		return KeyFrameSummary{}, false
	}
	kf.CameraPoints(g.settings.Filter)
	n := len(g.ordered)
	shown := false
	for i, o := range g.ordered {
		if o == kf {
			shown = pointCloudEligible(i, n, g.settings.CutFirstNKf)
			break
		}
	}
	return summarize(kf, shown), true
}

func summarize(kf *keyframe.KeyFrame, shown bool) KeyFrameSummary {
	t := kf.CamToWorld.Translation()
	return KeyFrameSummary{
		ID:              kf.ID,
		Time:            kf.Time,
		CamToWorld:      kf.CamToWorld.Array(),
		X:               t.X,
		Y:               t.Y,
		Z:               t.Z,
		Scale:           kf.CamToWorld.Scale(),
		TotalPoints:     kf.TotalPoints,
		DisplayedPoints: kf.DisplayedPoints,
		PointCloudShown: shown,
	}
}
