package graph

import (
	"github.com/banshee-data/slam.viewer/internal/keyframe"
)

// pointCloudEligible reports whether the keyframe at 0-based insertion
// index i of n is shown when the first cutFirstN keyframes are hidden.
// The last inserted keyframe is always eligible.
func pointCloudEligible(i, n, cutFirstN int) bool {
	return i >= cutFirstN || i == n-1
}

// ForEachKeyFrame visits, in insertion order, every keyframe whose point
// cloud is eligible for display or export: all but the first cutFirstN
// keyframes, plus the last inserted keyframe regardless of cutFirstN.
func (g *KeyFrameGraph) ForEachKeyFrame(cutFirstN int, fn func(kf *keyframe.KeyFrame)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forEachEligibleLocked(cutFirstN, fn)
}

func (g *KeyFrameGraph) forEachEligibleLocked(cutFirstN int, fn func(kf *keyframe.KeyFrame)) {
	n := len(g.ordered)
	for i, kf := range g.ordered {
		if pointCloudEligible(i, n, cutFirstN) {
			fn(kf)
		}
	}
}

// ForEachCamera visits every keyframe in insertion order. Camera poses are
// not subject to the point-cloud exclusion threshold.
func (g *KeyFrameGraph) ForEachCamera(fn func(kf *keyframe.KeyFrame)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, kf := range g.ordered {
		fn(kf)
	}
}

// ForEachConstraint visits constraints in storage order, skipping those with
// an unresolved endpoint.
func (g *KeyFrameGraph) ForEachConstraint(fn func(c Constraint, from, to *keyframe.KeyFrame)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forEachResolvedLocked(fn)
}

func (g *KeyFrameGraph) forEachResolvedLocked(fn func(c Constraint, from, to *keyframe.KeyFrame)) {
	for _, c := range g.constraints {
		if !c.Resolved() {
			continue
		}
		fn(c, g.byID[c.FromID], g.byID[c.ToID])
	}
}

// Constraints returns a copy of every stored constraint, unresolved ones
// included.
func (g *KeyFrameGraph) Constraints() []Constraint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Constraint(nil), g.constraints...)
}
