package keyframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// InputPointSize is the encoded size of one depth-map pixel:
// idepth float32, idepth variance float32, colour [4]uint8.
const InputPointSize = 12

// MaxImageDimension bounds Camera.Width and Camera.Height. Larger values
// are treated as a malformed payload.
const MaxImageDimension = 1 << 16

// ErrPayloadSize reports a point payload whose length does not match the
// camera resolution. It is never fatal: the frame keeps its pose and drops
// its points.
var ErrPayloadSize = errors.New("keyframe: point payload size does not match camera resolution")

// Camera holds pinhole intrinsics and the depth-map resolution.
type Camera struct {
	Fx     float32 `json:"fx"`
	Fy     float32 `json:"fy"`
	Cx     float32 `json:"cx"`
	Cy     float32 `json:"cy"`
	Width  uint32  `json:"width"`
	Height uint32  `json:"height"`
}

// Pixels returns width*height, or 0 when either dimension exceeds
// MaxImageDimension.
func (c Camera) Pixels() int {
	if !c.validSize() {
		return 0
	}
	return int(c.Width) * int(c.Height)
}

func (c Camera) validSize() bool {
	return c.Width <= MaxImageDimension && c.Height <= MaxImageDimension
}

// Message is a decoded keyframe update as delivered by the ingestion
// collaborator.
type Message struct {
	ID         uint32     `json:"id"`
	Time       float64    `json:"time"`
	CamToWorld [7]float32 `json:"cam_to_world"`
	Camera     Camera     `json:"camera"`
	PointCloud []byte     `json:"pointcloud,omitempty"`
}

// InputPoint is one pixel of the inverse-depth map.
type InputPoint struct {
	IDepth    float32
	IDepthVar float32
	Color     [4]uint8
}

// DecodeInputPoints decodes a payload for the given camera. A payload whose
// length is not exactly Pixels()*InputPointSize, or whose camera exceeds
// MaxImageDimension, yields ErrPayloadSize.
func DecodeInputPoints(payload []byte, cam Camera) ([]InputPoint, error) {
	if !cam.validSize() {
		return nil, fmt.Errorf("%w: resolution %dx%d exceeds %d",
			ErrPayloadSize, cam.Width, cam.Height, MaxImageDimension)
	}
	want := cam.Pixels() * InputPointSize
	if len(payload) != want {
		return nil, fmt.Errorf("%w: is %d, should be %d*%dx%d=%d",
			ErrPayloadSize, len(payload), InputPointSize, cam.Width, cam.Height, want)
	}
	pts := make([]InputPoint, cam.Pixels())
	for i := range pts {
		b := payload[i*InputPointSize:]
		pts[i] = InputPoint{
			IDepth:    math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
			IDepthVar: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
			Color:     [4]uint8{b[8], b[9], b[10], b[11]},
		}
	}
	return pts, nil
}

// EncodeInputPoints is the inverse of DecodeInputPoints.
func EncodeInputPoints(pts []InputPoint) []byte {
	out := make([]byte, len(pts)*InputPointSize)
	for i, p := range pts {
		b := out[i*InputPointSize:]
		binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(p.IDepth))
		binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(p.IDepthVar))
		copy(b[8:12], p.Color[:])
	}
	return out
}
