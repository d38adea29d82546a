package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
)

// Sink receives ingestion messages. *graph.KeyFrameGraph satisfies it.
type Sink interface {
	AddKeyFrame(msg keyframe.Message)
	AddGraphMessage(msg graph.GraphMessage) error
}

// Apply delivers e to sink. An entry whose payload is missing for its kind
// is an error.
func Apply(sink Sink, e Entry) error {
	switch e.Kind {
	case KindKeyFrame:
		if e.KeyFrame == nil {
			return fmt.Errorf("recorder: %s entry without payload", e.Kind)
		}
		sink.AddKeyFrame(*e.KeyFrame)
		return nil
	case KindGraph:
		if e.Graph == nil {
			return fmt.Errorf("recorder: %s entry without payload", e.Kind)
		}
		return sink.AddGraphMessage(*e.Graph)
	default:
		return fmt.Errorf("recorder: unknown entry kind %q", e.Kind)
	}
}

// Play feeds every remaining entry of r into sink, sleeping on clock between
// entries so that message timestamps are reproduced at the given rate. A
// rate <= 0 replays as fast as possible. A malformed graph batch stops the
// replay and is returned. Play returns the number of entries delivered.
func Play(ctx context.Context, r *Replayer, sink Sink, rate float64, clock timeutil.Clock) (int, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	delivered := 0
	havePrev := false
	var prev float64

	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("replay: finished after %d entries", delivered)
			return delivered, nil
		}
		if err != nil {
			return delivered, err
		}

		if havePrev && rate > 0 && e.Time > prev {
			wait := time.Duration((e.Time - prev) / rate * float64(time.Second))
			if err := timeutil.Sleep(ctx, clock, wait); err != nil {
				return delivered, err
			}
		}
		prev, havePrev = e.Time, true

		if err := Apply(sink, e); err != nil {
			return delivered, fmt.Errorf("replay entry %d: %w", r.Position()-1, err)
		}
		delivered++
	}
}

// Tap forwards every message to Sink and records it. Recording failures are
// logged once and never block ingestion.
type Tap struct {
	Sink     Sink
	Recorder *Recorder

	failed bool
}

// AddKeyFrame records msg and forwards it.
func (t *Tap) AddKeyFrame(msg keyframe.Message) {
	t.record(KeyFrameEntry(msg))
	t.Sink.AddKeyFrame(msg)
}

// AddGraphMessage records msg and forwards it.
func (t *Tap) AddGraphMessage(msg graph.GraphMessage) error {
	t.record(GraphEntry(msg))
	return t.Sink.AddGraphMessage(msg)
}

func (t *Tap) record(e Entry) {
	if err := t.Recorder.Record(e); err != nil && !t.failed {
		t.failed = true
		monitoring.Logf("recorder: recording stopped: %v", err)
	}
}
