package recorder

import (
	"math"

	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SynthConfig shapes a synthetic session.
type SynthConfig struct {
	KeyFrames int
	Width     int
	Height    int
	// FrameInterval is the spacing between keyframes in seconds.
	FrameInterval float64
	// GraphEvery emits a graph update after every n keyframes.
	GraphEvery int
	// Radius of the circular trajectory in metres.
	Radius float64
}

// DefaultSynthConfig returns a small session suitable for demos.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		KeyFrames:     40,
		Width:         64,
		Height:        48,
		FrameInterval: 0.5,
		GraphEvery:    5,
		Radius:        4,
	}
}

// Synthesize builds a deterministic session: a camera moving on a circle
// looking at a wall, with graph updates that chain consecutive keyframes,
// close the loop back to the first keyframe and slightly shift every pose.
func Synthesize(cfg SynthConfig) []Entry {
	if cfg.GraphEvery <= 0 {
		cfg.GraphEvery = cfg.KeyFrames + 1
	}
	cam := keyframe.Camera{
		Fx: float32(cfg.Width), Fy: float32(cfg.Width),
		Cx: float32(cfg.Width) / 2, Cy: float32(cfg.Height) / 2,
		Width: uint32(cfg.Width), Height: uint32(cfg.Height),
	}

	var entries []Entry
	poses := make([]keyframe.Sim3, 0, cfg.KeyFrames)
	for i := 0; i < cfg.KeyFrames; i++ {
		id := uint32(i + 1)
		t := float64(i) * cfg.FrameInterval
		pose := circlePose(i, cfg.KeyFrames, cfg.Radius, 1)
		poses = append(poses, pose)

		entries = append(entries, KeyFrameEntry(keyframe.Message{
			ID:         id,
			Time:       t,
			CamToWorld: pose.Array(),
			Camera:     cam,
			PointCloud: keyframe.EncodeInputPoints(synthDepth(i, cfg.Width, cfg.Height)),
		}))

		if (i+1)%cfg.GraphEvery != 0 {
			continue
		}
		var cs []graph.ConstraintRecord
		for j := 1; j <= i; j++ {
			cs = append(cs, graph.ConstraintRecord{
				FromID: uint32(j),
				ToID:   uint32(j + 1),
				Err:    float32(0.01 * float64(j%7)),
			})
		}
		if i+1 > cfg.GraphEvery {
			cs = append(cs, graph.ConstraintRecord{FromID: id, ToID: 1, Err: 0.08})
		}
		ps := make([]graph.PoseRecord, len(poses))
		for j := range poses {
			ps[j] = graph.PoseFromSim3(uint32(j+1), circlePose(j, cfg.KeyFrames, cfg.Radius, 1+0.002*float64(i)))
		}
		msg := graph.NewGraphMessage(cs, ps)
		msg.Time = t + cfg.FrameInterval/2
		entries = append(entries, GraphEntry(msg))
	}
	return entries
}

func circlePose(i, n int, radius, scale float64) keyframe.Sim3 {
	theta := 2 * math.Pi * float64(i) / float64(n)
	half := -theta / 2
	rot := quat.Number{Real: math.Cos(half), Jmag: math.Sin(half)}
	t := r3.Vec{X: radius * math.Sin(theta), Y: 0, Z: -radius * math.Cos(theta)}
	return keyframe.NewSim3(rot, t, scale)
}

func synthDepth(frame, w, h int) []keyframe.InputPoint {
	pts := make([]keyframe.InputPoint, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			depth := 2 + 0.5*math.Sin(float64(x+frame)/8)*math.Cos(float64(y)/6)
			shade := uint8(64 + (x*191)/w)
			pts[x+y*w] = keyframe.InputPoint{
				IDepth:    float32(1 / depth),
				IDepthVar: 1e-5,
				Color:     [4]uint8{shade, uint8(64 + (y*191)/h), uint8(frame * 7), 0},
			}
		}
	}
	return pts
}

// WriteSession records entries to a new session at basePath.
func WriteSession(rec *Recorder, entries []Entry) error {
	for _, e := range entries {
		if err := rec.Record(e); err != nil {
			return err
		}
	}
	return rec.Close()
}
