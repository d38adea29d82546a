package graph

// Constraint is a stored edge between two keyframe ids. Whether each
// endpoint resolved is decided when the constraint batch is installed and is
// not revisited until the next batch replaces it.
type Constraint struct {
	FromID uint32
	ToID   uint32
	Err    float32

	fromResolved bool
	toResolved   bool
}

// FromResolved reports whether the source keyframe was known when the
// batch was installed.
func (c Constraint) FromResolved() bool { return c.fromResolved }

// ToResolved reports whether the target keyframe was known when the batch
// was installed.
func (c Constraint) ToResolved() bool { return c.toResolved }

// Resolved reports whether both endpoints resolved. Unresolved constraints
// are stored but never drawn or exported.
func (c Constraint) Resolved() bool { return c.fromResolved && c.toResolved }

// ColorScalar maps the residual onto [0, 1] for display, saturating at
// errScale.
func (c Constraint) ColorScalar(errScale float64) float64 {
	if errScale <= 0 {
		return 1
	}
	v := float64(c.Err) / errScale
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
