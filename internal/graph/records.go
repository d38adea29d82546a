package graph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/slam.viewer/internal/keyframe"
)

// Encoded record sizes of the graph update batches.
const (
	ConstraintRecordSize = 12
	PoseRecordSize       = 32
)

// ErrMalformedBatch reports a graph update whose declared element count does
// not match its payload length. It signals a framing or decoding bug in the
// caller and is never recovered from locally.
var ErrMalformedBatch = errors.New("graph: malformed batch")

// ConstraintRecord is one transmitted constraint.
type ConstraintRecord struct {
	FromID uint32  `json:"from"`
	ToID   uint32  `json:"to"`
	Err    float32 `json:"err"`
}

// PoseRecord is one transmitted optimised pose.
type PoseRecord struct {
	ID         uint32     `json:"id"`
	CamToWorld [7]float32 `json:"cam_to_world"`
}

// GraphMessage is a graph update in its transmitted form: two batches with
// declared element counts and raw little-endian payloads.
type GraphMessage struct {
	Time            float64 `json:"time"`
	NumConstraints  uint32  `json:"num_constraints"`
	ConstraintsData []byte  `json:"constraints_data,omitempty"`
	NumFrames       uint32  `json:"num_frames"`
	FrameData       []byte  `json:"frame_data,omitempty"`
}

// NewGraphMessage encodes typed batches into a GraphMessage.
func NewGraphMessage(constraints []ConstraintRecord, poses []PoseRecord) GraphMessage {
	return GraphMessage{
		NumConstraints:  uint32(len(constraints)),
		ConstraintsData: EncodeConstraints(constraints),
		NumFrames:       uint32(len(poses)),
		FrameData:       EncodePoses(poses),
	}
}

// Decode validates both batches and decodes them. Nothing is decoded unless
// both declared counts match their payload lengths exactly.
func (m GraphMessage) Decode() ([]ConstraintRecord, []PoseRecord, error) {
	if want := int(m.NumConstraints) * ConstraintRecordSize; len(m.ConstraintsData) != want {
		return nil, nil, fmt.Errorf("%w: %d constraints declared (%d bytes), payload is %d bytes",
			ErrMalformedBatch, m.NumConstraints, want, len(m.ConstraintsData))
	}
	if want := int(m.NumFrames) * PoseRecordSize; len(m.FrameData) != want {
		return nil, nil, fmt.Errorf("%w: %d poses declared (%d bytes), payload is %d bytes",
			ErrMalformedBatch, m.NumFrames, want, len(m.FrameData))
	}

	constraints := make([]ConstraintRecord, m.NumConstraints)
	for i := range constraints {
		b := m.ConstraintsData[i*ConstraintRecordSize:]
		constraints[i] = ConstraintRecord{
			FromID: binary.LittleEndian.Uint32(b[0:4]),
			ToID:   binary.LittleEndian.Uint32(b[4:8]),
			Err:    math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		}
	}

	poses := make([]PoseRecord, m.NumFrames)
	for i := range poses {
		b := m.FrameData[i*PoseRecordSize:]
		poses[i].ID = binary.LittleEndian.Uint32(b[0:4])
		for j := 0; j < 7; j++ {
			poses[i].CamToWorld[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[4+4*j:]))
		}
	}
	return constraints, poses, nil
}

// EncodeConstraints encodes constraint records in transmission layout.
func EncodeConstraints(cs []ConstraintRecord) []byte {
	out := make([]byte, len(cs)*ConstraintRecordSize)
	for i, c := range cs {
		b := out[i*ConstraintRecordSize:]
		binary.LittleEndian.PutUint32(b[0:4], c.FromID)
		binary.LittleEndian.PutUint32(b[4:8], c.ToID)
		binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(c.Err))
	}
	return out
}

// EncodePoses encodes pose records in transmission layout.
func EncodePoses(ps []PoseRecord) []byte {
	out := make([]byte, len(ps)*PoseRecordSize)
	for i, p := range ps {
		b := out[i*PoseRecordSize:]
		binary.LittleEndian.PutUint32(b[0:4], p.ID)
		for j, v := range p.CamToWorld {
			binary.LittleEndian.PutUint32(b[4+4*j:], math.Float32bits(v))
		}
	}
	return out
}

// PoseFromSim3 is a convenience for building pose records.
func PoseFromSim3(id uint32, s keyframe.Sim3) PoseRecord {
	return PoseRecord{ID: id, CamToWorld: s.Array()}
}
