package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
)

// Flusher periodically exports the graph to disk and performs a final
// export on shutdown.
type Flusher struct {
	exporter *Exporter
	source   Source
	interval time.Duration
	clock    timeutil.Clock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// FlusherConfig contains configuration for Flusher.
type FlusherConfig struct {
	Exporter *Exporter
	Source   Source
	// Interval is how often to export; zero or negative disables the
	// periodic export but keeps the final one.
	Interval time.Duration
	// Clock is optional; if nil, uses the real clock.
	Clock timeutil.Clock
}

// NewFlusher creates a new Flusher.
func NewFlusher(cfg FlusherConfig) *Flusher {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Flusher{
		exporter: cfg.Exporter,
		source:   cfg.Source,
		interval: cfg.Interval,
		clock:    clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the flush loop. It blocks until ctx is cancelled or Stop is
// called, then performs the final export. Returns nil on clean shutdown.
func (f *Flusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	stopCh := f.stopCh
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		close(f.doneCh)
		f.mu.Unlock()
	}()

	var tick <-chan time.Time
	if f.interval > 0 {
		ticker := f.clock.NewTicker(f.interval)
		defer ticker.Stop()
		tick = ticker.C()
		monitoring.Logf("exporter: flusher started: interval=%v", f.interval)
	} else {
		monitoring.Logf("exporter: periodic flush disabled, final flush only")
	}

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("exporter: flusher stopping due to context cancellation")
			// The run context is gone; the final export gets its own.
			f.flush(context.WithoutCancel(ctx), ReasonFinal)
			return nil
		case <-stopCh:
			monitoring.Logf("exporter: flusher stopping due to Stop() call")
			f.flush(ctx, ReasonFinal)
			return nil
		case <-tick:
			f.flush(ctx, ReasonPeriodic)
		}
	}
}

// Stop requests the flusher to stop and waits for the final export. It is
// safe to call multiple times.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	doneCh := f.doneCh
	f.mu.Unlock()

	<-doneCh
}

// IsRunning returns whether the flusher is currently running.
func (f *Flusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// FlushNow exports immediately outside the regular interval.
func (f *Flusher) FlushNow(ctx context.Context) (ExportRecord, error) {
	return f.exporter.Flush(ctx, f.source, ReasonManual)
}

func (f *Flusher) flush(ctx context.Context, reason string) {
	if f.exporter == nil || f.source == nil {
		return
	}
	if _, err := f.exporter.Flush(ctx, f.source, reason); err != nil {
		monitoring.Logf("exporter: %s flush failed: %v", reason, err)
	}
}
