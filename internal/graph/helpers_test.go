package graph

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"gonum.org/v1/gonum/spatial/r3"
)

// testMessage builds a 4x4 keyframe message whose interior yields four
// points at depth 1, translated by (tx, 0, 0).
func testMessage(id uint32, tx float32) keyframe.Message {
	pts := make([]keyframe.InputPoint, 16)
	for i := range pts {
		pts[i] = keyframe.InputPoint{IDepth: 1, IDepthVar: 1e-4, Color: [4]uint8{uint8(id), 0, 0, 0}}
	}
	return keyframe.Message{
		ID:         id,
		Time:       float64(id),
		CamToWorld: [7]float32{0, 0, 0, 1, tx, 0, 0},
		Camera:     keyframe.Camera{Fx: 1, Fy: 1, Width: 4, Height: 4},
		PointCloud: keyframe.EncodeInputPoints(pts),
	}
}

func newTestGraph(cut int) *KeyFrameGraph {
	s := DefaultDisplaySettings()
	s.CutFirstNKf = cut
	return New(s)
}

func visitedIDs(g *KeyFrameGraph, cut int) []uint32 {
	var ids []uint32
	g.ForEachKeyFrame(cut, func(kf *keyframe.KeyFrame) {
		ids = append(ids, kf.ID)
	})
	return ids
}

// bufferSink collects exports in memory.
type bufferSink struct {
	buf     bytes.Buffer
	summary ExportSummary
	err     error
	calls   int
}

func (s *bufferSink) WritePointCloud(write func(w io.Writer) (ExportSummary, error)) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.buf.Reset()
	sum, err := write(&s.buf)
	s.summary = sum
	return err
}

// recordingRenderer counts draw calls.
type recordingRenderer struct {
	mu          sync.Mutex
	cameras     []uint32
	clouds      []uint32
	constraints []float64
	captures    int
	captureErr  error
}

func (r *recordingRenderer) DrawCamera(kf *keyframe.KeyFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = append(r.cameras, kf.ID)
}

func (r *recordingRenderer) DrawPointCloud(kf *keyframe.KeyFrame, pts []keyframe.CameraPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clouds = append(r.clouds, kf.ID)
}

func (r *recordingRenderer) DrawConstraint(from, to r3.Vec, colorScalar float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constraints = append(r.constraints, colorScalar)
}

func (r *recordingRenderer) Capture() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures++
	return r.captureErr
}

var errCaptureFailed = errors.New("invalid frame capture")
