package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op logger that must not call the previous one.
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestCapture(t *testing.T) {
	original := Logf
	captured, restore := Capture()

	Logf("graph: dropped pose for unknown keyframe %d", 42)
	Logf("second line")

	lines := captured.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "graph: dropped pose for unknown keyframe 42" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !captured.Contains("unknown keyframe") {
		t.Error("Contains should find substring")
	}
	if captured.Contains("missing") {
		t.Error("Contains should not match absent text")
	}

	restore()
	Logf("after restore")
	if len(captured.Lines()) != 2 {
		t.Error("restore should detach the captured log")
	}
	Logf = original
}
