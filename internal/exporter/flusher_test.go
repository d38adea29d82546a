package exporter

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
)

func TestFlusher_PeriodicAndFinal(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	clock := timeutil.NewMockClock(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	j := &memJournal{}
	e, _ := newTestExporter(t, Config{Journal: j, Clock: clock})

	f := NewFlusher(FlusherConfig{
		Exporter: e,
		Source:   testGraph(1),
		Interval: time.Minute,
		Clock:    clock,
	})

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()
	clock.BlockUntilTickers(1)

	clock.Advance(time.Minute)
	waitFor(t, func() bool { return len(j.records()) == 1 })

	clock.Advance(time.Minute)
	waitFor(t, func() bool { return len(j.records()) == 2 })

	f.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if f.IsRunning() {
		t.Error("flusher still running after Stop")
	}

	recs := j.records()
	if len(recs) != 3 {
		t.Fatalf("got %d exports, want 3", len(recs))
	}
	reasons := []string{recs[0].Reason, recs[1].Reason, recs[2].Reason}
	want := []string{ReasonPeriodic, ReasonPeriodic, ReasonFinal}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("export %d reason = %q, want %q", i, reasons[i], want[i])
		}
	}
}

func TestFlusher_DisabledIntervalStillFlushesOnCancel(t *testing.T) {
	captured, restore := monitoring.Capture()
	defer restore()

	j := &memJournal{}
	e, _ := newTestExporter(t, Config{Journal: j})
	f := NewFlusher(FlusherConfig{Exporter: e, Source: testGraph(1, 2)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	waitFor(t, f.IsRunning)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	recs := j.records()
	if len(recs) != 1 || recs[0].Reason != ReasonFinal {
		t.Fatalf("expected a single final export, got %+v", recs)
	}
	if !captured.Contains("periodic flush disabled") {
		t.Error("expected disabled-interval log line")
	}
}

func TestFlusher_FlushNow(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	e, _ := newTestExporter(t, Config{})
	f := NewFlusher(FlusherConfig{Exporter: e, Source: testGraph(3)})

	rec, err := f.FlushNow(context.Background())
	if err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if rec.Reason != ReasonManual || rec.Points != 4 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestFlusher_StopWhenNotRunning(t *testing.T) {
	f := NewFlusher(FlusherConfig{})
	f.Stop()
	if f.IsRunning() {
		t.Error("IsRunning() = true")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
