// Package graph holds the live pose graph of keyframes and constraints fed
// by the SLAM backend and read by the render and export paths.
//
// Every mutation and every full traversal takes the single graph mutex for
// its whole duration, export file writes included. Visitors passed to the
// ForEach* methods and sinks passed to Export run while the lock is held:
// they must not call back into the graph and must not retain the keyframe
// pointers they are given.
package graph

import (
	"errors"
	"sync"

	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
)

// DisplaySettings controls which parts of the graph are drawn and exported.
type DisplaySettings struct {
	// CutFirstNKf hides the point clouds of the first N inserted keyframes.
	// The most recently inserted keyframe is always shown.
	CutFirstNKf int
	// Filter is applied when depth maps are turned into points.
	Filter keyframe.Filter
	// ConstraintErrScale is the residual at which constraint colour saturates.
	ConstraintErrScale float64
	// CaptureEvery requests a frame capture every n draw passes; 0 disables.
	CaptureEvery int

	ShowKFCameras     bool
	ShowKFPointclouds bool
	ShowConstraints   bool
}

// DefaultDisplaySettings returns the viewer's stock settings.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		CutFirstNKf:        5,
		Filter:             keyframe.DefaultFilter(),
		ConstraintErrScale: 0.05,
		ShowKFCameras:      true,
		ShowKFPointclouds:  true,
		ShowConstraints:    true,
	}
}

// KeyFrameGraph owns all keyframes and the current constraint set.
// Keyframes are never removed.
type KeyFrameGraph struct {
	mu sync.Mutex

	byID        map[uint32]*keyframe.KeyFrame
	ordered     []*keyframe.KeyFrame
	constraints []Constraint

	settings DisplaySettings

	drawCount    uint64
	pendingFlush PointCloudSink
	printPending bool
}

// New returns an empty graph using the given display settings.
func New(settings DisplaySettings) *KeyFrameGraph {
	return &KeyFrameGraph{
		byID:     make(map[uint32]*keyframe.KeyFrame),
		settings: settings,
	}
}

// SetDisplaySettings replaces the display settings.
func (g *KeyFrameGraph) SetDisplaySettings(s DisplaySettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settings = s
}

// DisplaySettings returns the current display settings.
func (g *KeyFrameGraph) DisplaySettings() DisplaySettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

// AddKeyFrame inserts a keyframe on first sight of its id and overwrites its
// pose and depth map with msg. Updates are last-write-wins. A payload that
// does not match the camera resolution is logged and leaves the frame
// without points; it never affects other frames.
func (g *KeyFrameGraph) AddKeyFrame(msg keyframe.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kf, ok := g.byID[msg.ID]
	if !ok {
		kf = keyframe.New(msg.ID)
		g.byID[msg.ID] = kf
		g.ordered = append(g.ordered, kf)
	}

	if err := kf.SetFrom(msg); err != nil {
		payloadErrors.Inc()
		if errors.Is(err, keyframe.ErrPayloadSize) {
			monitoring.Logf("graph: WARNING keyframe %d has points, but number of points not right: %v", msg.ID, err)
		} else {
			monitoring.Logf("graph: keyframe %d: %v", msg.ID, err)
		}
	}
}

// AddGraphUpdate replaces the whole constraint set and applies optimised
// poses. Constraint endpoints are resolved against the keyframes known now;
// unknown endpoints are stored unresolved. Poses for unknown ids are
// dropped: a pose update never creates a keyframe.
func (g *KeyFrameGraph) AddGraphUpdate(constraints []ConstraintRecord, poses []PoseRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyGraphUpdateLocked(constraints, poses)
}

// AddGraphMessage decodes msg and applies it. A count/size mismatch in
// either batch returns an error wrapping ErrMalformedBatch and leaves the
// graph untouched.
func (g *KeyFrameGraph) AddGraphMessage(msg GraphMessage) error {
	constraints, poses, err := msg.Decode()
	if err != nil {
		malformedBatches.Inc()
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyGraphUpdateLocked(constraints, poses)
	return nil
}

func (g *KeyFrameGraph) applyGraphUpdateLocked(constraints []ConstraintRecord, poses []PoseRecord) {
	next := make([]Constraint, len(constraints))
	for i, rec := range constraints {
		_, fromOK := g.byID[rec.FromID]
		_, toOK := g.byID[rec.ToID]
		if !fromOK {
			unresolvedEndpoints.Inc()
		}
		if !toOK {
			unresolvedEndpoints.Inc()
		}
		next[i] = Constraint{
			FromID:       rec.FromID,
			ToID:         rec.ToID,
			Err:          rec.Err,
			fromResolved: fromOK,
			toResolved:   toOK,
		}
	}
	g.constraints = next

	for _, p := range poses {
		kf, ok := g.byID[p.ID]
		if !ok {
			droppedPoses.Inc()
			continue
		}
		kf.SetPose(keyframe.Sim3FromArray(p.CamToWorld))
	}
}

// Len returns the number of keyframes.
func (g *KeyFrameGraph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ordered)
}

// KeyFrameIDs returns keyframe ids in insertion order.
func (g *KeyFrameGraph) KeyFrameIDs() []uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]uint32, len(g.ordered))
	for i, kf := range g.ordered {
		ids[i] = kf.ID
	}
	return ids
}

// Pose returns the current pose of keyframe id.
func (g *KeyFrameGraph) Pose(id uint32) (keyframe.Sim3, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kf, ok := g.byID[id]
	if !ok {
		return keyframe.Sim3{}, false
	}
	return kf.CamToWorld, true
}
