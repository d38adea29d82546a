// Package keyframe models a single SLAM keyframe: its pose, camera
// intrinsics and inverse-depth map, and turns the depth map into points.
//
// A KeyFrame is not safe for concurrent use on its own. The owning graph
// serialises every access behind its lock.
package keyframe

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// CameraPoint is a point in the keyframe's camera frame.
type CameraPoint struct {
	P     r3.Vec
	Color [4]uint8
}

// KeyFrame is one keyframe of the pose graph.
type KeyFrame struct {
	ID         uint32
	Time       float64
	CamToWorld Sim3
	Camera     Camera

	// TotalPoints counts interior pixels carrying a valid inverse depth.
	TotalPoints int
	// DisplayedPoints counts the points surviving the last filter applied.
	DisplayedPoints int

	input []InputPoint

	cloud       []CameraPoint
	cloudValid  bool
	cloudFilter Filter
	cloudScale  float64
}

// New returns an empty keyframe with an identity pose.
func New(id uint32) *KeyFrame {
	return &KeyFrame{ID: id, CamToWorld: IdentitySim3()}
}

// SetFrom overwrites pose, intrinsics and depth map from msg. A payload that
// does not match the resolution leaves the frame without points and returns
// ErrPayloadSize; the pose and intrinsics are still applied.
func (kf *KeyFrame) SetFrom(msg Message) error {
	kf.ID = msg.ID
	kf.Time = msg.Time
	kf.CamToWorld = Sim3FromArray(msg.CamToWorld)
	kf.Camera = msg.Camera
	kf.input = nil
	kf.cloudValid = false
	kf.TotalPoints = 0
	kf.DisplayedPoints = 0

	if len(msg.PointCloud) == 0 {
		return nil
	}
	pts, err := DecodeInputPoints(msg.PointCloud, msg.Camera)
	if err != nil {
		return err
	}
	kf.input = pts
	return nil
}

// SetPose overwrites the camera-to-world transform only.
func (kf *KeyFrame) SetPose(p Sim3) {
	kf.CamToWorld = p
}

// HasPoints reports whether a depth map is attached.
func (kf *KeyFrame) HasPoints() bool {
	return len(kf.input) > 0
}

// CameraPoints returns the filtered camera-frame points, recomputing them
// when the depth map, the filter or the pose scale changed. The returned
// slice is owned by the keyframe.
func (kf *KeyFrame) CameraPoints(f Filter) []CameraPoint {
	scale := kf.CamToWorld.Scale()
	if kf.cloudValid && kf.cloudFilter == f && kf.cloudScale == scale {
		return kf.cloud
	}
	kf.computeCloud(f, scale)
	kf.cloudValid = true
	kf.cloudFilter = f
	kf.cloudScale = scale
	return kf.cloud
}

// WorldPoints transforms the filtered points with the current pose and
// passes each one to fn with its packed colour. It returns the number of
// points visited.
func (kf *KeyFrame) WorldPoints(f Filter, fn func(p r3.Vec, rgb uint32)) int {
	pts := kf.CameraPoints(f)
	for _, cp := range pts {
		fn(kf.CamToWorld.Transform(cp.P), PackRGB(cp.Color))
	}
	return len(pts)
}

func (kf *KeyFrame) computeCloud(f Filter, scale float64) {
	kf.cloud = kf.cloud[:0]
	kf.TotalPoints = 0
	kf.DisplayedPoints = 0

	w, h := int(kf.Camera.Width), int(kf.Camera.Height)
	if len(kf.input) != w*h || w < 3 || h < 3 || kf.Camera.Fx == 0 || kf.Camera.Fy == 0 {
		return
	}

	fxi := 1 / float64(kf.Camera.Fx)
	fyi := 1 / float64(kf.Camera.Fy)
	cxi := -float64(kf.Camera.Cx) * fxi
	cyi := -float64(kf.Camera.Cy) * fyi
	scale2 := scale * scale

	candidates := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			in := kf.input[x+y*w]
			if in.IDepth <= 0 {
				continue
			}
			kf.TotalPoints++

			depth := 1 / float64(in.IDepth)
			depth4 := depth * depth
			depth4 *= depth4
			v := float64(in.IDepthVar) * depth4
			if v > f.ScaledDepthVarTH {
				continue
			}
			if v*scale2 > f.AbsDepthVarTH {
				continue
			}
			if f.MinNearSupport > 1 && kf.nearSupport(x, y, w) < f.MinNearSupport {
				continue
			}

			candidates++
			if f.SparsifyFactor > 1 && candidates%f.SparsifyFactor != 0 {
				continue
			}

			kf.cloud = append(kf.cloud, CameraPoint{
				P: r3.Vec{
					X: (float64(x)*fxi + cxi) * depth,
					Y: (float64(y)*fyi + cyi) * depth,
					Z: depth,
				},
				Color: in.Color,
			})
		}
	}
	kf.DisplayedPoints = len(kf.cloud)
}

// nearSupport counts 3x3 neighbours (centre included) whose inverse depth
// agrees with the centre pixel within twice its variance.
func (kf *KeyFrame) nearSupport(x, y, w int) int {
	centre := kf.input[x+y*w]
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			nb := kf.input[x+dx+(y+dy)*w]
			if nb.IDepth <= 0 {
				continue
			}
			diff := nb.IDepth - centre.IDepth
			if diff*diff < 2*centre.IDepthVar {
				n++
			}
		}
	}
	return n
}
