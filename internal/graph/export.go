package graph

import (
	"io"

	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"github.com/banshee-data/slam.viewer/internal/pcd"
	"gonum.org/v1/gonum/spatial/r3"
)

// ExportSummary describes one written point cloud.
type ExportSummary struct {
	KeyFrames int
	Points    int
	Bytes     int64
}

// PointCloudSink receives a point-cloud export. WritePointCloud is called
// with the graph lock held and must call write exactly once with the
// destination writer.
type PointCloudSink interface {
	WritePointCloud(write func(w io.Writer) (ExportSummary, error)) error
}

// Export writes the eligible point clouds to sink while holding the graph
// lock for the whole write. Ingestion blocks until the export finishes.
func (g *KeyFrameGraph) Export(sink PointCloudSink) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sink.WritePointCloud(g.writePointCloudLocked)
}

// WritePointCloud writes the eligible point clouds to w as a binary PCD
// container.
func (g *KeyFrameGraph) WritePointCloud(w io.Writer) (ExportSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writePointCloudLocked(w)
}

// writePointCloudLocked builds the intermediate point stream in one
// traversal and then writes the header and stream. The declared point count
// comes from the same stream that is written.
func (g *KeyFrameGraph) writePointCloudLocked(w io.Writer) (ExportSummary, error) {
	s := g.settings

	estimate := 0
	g.forEachEligibleLocked(s.CutFirstNKf, func(kf *keyframe.KeyFrame) {
		estimate += kf.DisplayedPoints
	})

	b := pcd.NewBuilder(estimate)
	var sum ExportSummary
	g.forEachEligibleLocked(s.CutFirstNKf, func(kf *keyframe.KeyFrame) {
		sum.KeyFrames++
		kf.WorldPoints(s.Filter, func(p r3.Vec, rgb uint32) {
			b.Add(pcd.Point{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z), RGB: rgb})
		})
	})

	n, err := b.WriteTo(w)
	sum.Points = b.Count()
	sum.Bytes = n
	return sum, err
}
