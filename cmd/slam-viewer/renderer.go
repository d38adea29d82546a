package main

import (
	"log"

	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"gonum.org/v1/gonum/spatial/r3"
)

// headlessRenderer tallies what a draw pass would put on screen. Capture
// logs the tally in place of a framebuffer grab.
type headlessRenderer struct {
	cameras     int
	clouds      int
	points      int
	constraints int
	captures    int
}

func (r *headlessRenderer) reset() {
	r.cameras, r.clouds, r.points, r.constraints = 0, 0, 0, 0
}

func (r *headlessRenderer) DrawCamera(kf *keyframe.KeyFrame) {
	r.cameras++
}

func (r *headlessRenderer) DrawPointCloud(kf *keyframe.KeyFrame, pts []keyframe.CameraPoint) {
	r.clouds++
	r.points += len(pts)
}

func (r *headlessRenderer) DrawConstraint(from, to r3.Vec, colorScalar float64) {
	r.constraints++
}

func (r *headlessRenderer) Capture() error {
	r.captures++
	log.Printf("capture %d: %d cameras, %d clouds (%d points), %d constraints",
		r.captures, r.cameras, r.clouds, r.points, r.constraints)
	return nil
}
