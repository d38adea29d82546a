package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGraphMessageDecode(t *testing.T) {
	cs := []ConstraintRecord{{FromID: 1, ToID: 2, Err: 0.25}, {FromID: 7, ToID: 3, Err: 1}}
	ps := []PoseRecord{{ID: 4, CamToWorld: [7]float32{0.1, 0.2, 0.3, 0.9, 1, 2, 3}}}

	msg := NewGraphMessage(cs, ps)
	if len(msg.ConstraintsData) != 2*ConstraintRecordSize || len(msg.FrameData) != PoseRecordSize {
		t.Fatalf("unexpected payload sizes %d, %d", len(msg.ConstraintsData), len(msg.FrameData))
	}

	gotC, gotP, err := msg.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(cs, gotC); diff != "" {
		t.Errorf("constraints (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ps, gotP); diff != "" {
		t.Errorf("poses (-want +got):\n%s", diff)
	}
}

func TestGraphMessageDecode_Empty(t *testing.T) {
	cs, ps, err := GraphMessage{}.Decode()
	if err != nil {
		t.Fatalf("empty message should decode: %v", err)
	}
	if len(cs) != 0 || len(ps) != 0 {
		t.Errorf("expected empty batches, got %d, %d", len(cs), len(ps))
	}
}

func TestConstraintColorScalar(t *testing.T) {
	tests := []struct {
		err   float32
		scale float64
		want  float64
	}{
		{err: 0, scale: 0.05, want: 0},
		{err: 0.025, scale: 0.05, want: 0.5},
		{err: 1, scale: 0.05, want: 1},
		{err: -1, scale: 0.05, want: 0},
		{err: 0.01, scale: 0, want: 1},
	}
	for _, tt := range tests {
		got := Constraint{Err: tt.err}.ColorScalar(tt.scale)
		if d := got - tt.want; d > 1e-6 || d < -1e-6 {
			t.Errorf("ColorScalar(err=%v, scale=%v) = %v, want %v", tt.err, tt.scale, got, tt.want)
		}
	}
}
