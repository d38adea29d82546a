package graph

import (
	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

// Renderer is the drawing collaborator of a render pass. All calls happen
// while the graph lock is held.
type Renderer interface {
	DrawCamera(kf *keyframe.KeyFrame)
	DrawPointCloud(kf *keyframe.KeyFrame, pts []keyframe.CameraPoint)
	DrawConstraint(from, to r3.Vec, colorScalar float64)
	// Capture grabs the rendered frame. An error skips the capture for
	// this pass only.
	Capture() error
}

// RequestFlush schedules an export to sink during the next draw pass.
func (g *KeyFrameGraph) RequestFlush(sink PointCloudSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingFlush = sink
}

// Draw performs one render pass under the graph lock: cameras, eligible
// point clouds, the periodic capture, any pending flush and print request,
// and resolved constraints. It returns the error of a pending flush, if
// one ran and failed.
func (g *KeyFrameGraph) Draw(r Renderer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.settings
	n := len(g.ordered)
	for i, kf := range g.ordered {
		if s.ShowKFCameras {
			r.DrawCamera(kf)
		}
		if (s.ShowKFPointclouds && pointCloudEligible(i, n, s.CutFirstNKf)) || i == n-1 {
			r.DrawPointCloud(kf, kf.CameraPoints(s.Filter))
		}
	}

	if s.CaptureEvery > 0 && g.drawCount%uint64(s.CaptureEvery) == 0 {
		if err := r.Capture(); err != nil {
			monitoring.Logf("graph: frame capture failed, skipping: %v", err)
		}
	}
	g.drawCount++

	var flushErr error
	if sink := g.pendingFlush; sink != nil {
		g.pendingFlush = nil
		flushErr = sink.WritePointCloud(g.writePointCloudLocked)
		if flushErr != nil {
			monitoring.Logf("graph: pending point cloud flush failed: %v", flushErr)
		}
	}

	if g.printPending {
		g.printPending = false
		g.printNumbersLocked()
	}

	if s.ShowConstraints {
		g.forEachResolvedLocked(func(c Constraint, from, to *keyframe.KeyFrame) {
			r.DrawConstraint(from.CamToWorld.Translation(), to.CamToWorld.Translation(), c.ColorScalar(s.ConstraintErrScale))
		})
	}
	return flushErr
}
