package keyframe

// Filter holds the point-cloud sparsification thresholds applied when a
// depth map is turned into points.
type Filter struct {
	// ScaledDepthVarTH rejects points whose idepth variance scaled by depth^4
	// exceeds it.
	ScaledDepthVarTH float64
	// AbsDepthVarTH is the same test additionally scaled by the squared
	// keyframe scale.
	AbsDepthVarTH float64
	// MinNearSupport is the number of consistent 3x3 neighbours required.
	// Values <= 1 disable the check.
	MinNearSupport int
	// SparsifyFactor keeps every n-th surviving point. Values <= 1 keep all.
	SparsifyFactor int
}

// DefaultFilter returns the viewer's stock thresholds.
func DefaultFilter() Filter {
	return Filter{
		ScaledDepthVarTH: 1e-3,
		AbsDepthVarTH:    1e-1,
		MinNearSupport:   7,
		SparsifyFactor:   1,
	}
}

// PackRGB packs a colour the way the point-cloud exporter stores it:
// bytes B, G, R, A in little-endian order with a fixed alpha of 100.
func PackRGB(c [4]uint8) uint32 {
	return uint32(c[2]) | uint32(c[1])<<8 | uint32(c[0])<<16 | 100<<24
}
