package recorder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/slam.viewer/internal/fsutil"
	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallKeyFrame(id uint32, t float64) keyframe.Message {
	cam := keyframe.Camera{Fx: 1, Fy: 1, Width: 3, Height: 3}
	pts := make([]keyframe.InputPoint, cam.Pixels())
	for i := range pts {
		pts[i] = keyframe.InputPoint{IDepth: 1, IDepthVar: 1e-4, Color: [4]uint8{uint8(id), 0, 0, 0}}
	}
	return keyframe.Message{
		ID:         id,
		Time:       t,
		CamToWorld: keyframe.IdentitySim3().Array(),
		Camera:     cam,
		PointCloud: keyframe.EncodeInputPoints(pts),
	}
}

func smallGraphUpdate(t float64, from, to uint32) graph.GraphMessage {
	msg := graph.NewGraphMessage(
		[]graph.ConstraintRecord{{FromID: from, ToID: to, Err: 0.02}},
		[]graph.PoseRecord{graph.PoseFromSim3(from, keyframe.IdentitySim3())},
	)
	msg.Time = t
	return msg
}

func writeSession(t *testing.T, fs fsutil.FileSystem, dir string, entries []Entry) {
	t.Helper()
	rec, err := NewRecorder(fs, dir, "test")
	require.NoError(t, err)
	require.NoError(t, WriteSession(rec, entries))
}

func readAll(t *testing.T, r *Replayer) []Entry {
	t.Helper()
	var out []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestRecordReplay_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	entries := []Entry{
		KeyFrameEntry(smallKeyFrame(1, 0.5)),
		KeyFrameEntry(smallKeyFrame(2, 1.0)),
		GraphEntry(smallGraphUpdate(1.25, 1, 2)),
	}
	writeSession(t, nil, dir, entries)

	r, err := NewReplayer(nil, dir)
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, FormatVersion, h.Version)
	assert.Equal(t, "test", h.Source)
	assert.Equal(t, uint64(3), h.TotalEntries)
	assert.Equal(t, uint64(2), h.KeyFrames)
	assert.Equal(t, uint64(1), h.GraphUpdates)
	assert.Equal(t, 0.5, h.StartTime)
	assert.Equal(t, 1.25, h.EndTime)

	if diff := cmp.Diff(entries, readAll(t, r)); diff != "" {
		t.Errorf("replayed entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordReplay_SpansChunks(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	n := ChunkSize + 10
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = KeyFrameEntry(smallKeyFrame(uint32(i+1), float64(i)))
	}
	writeSession(t, fs, "session", entries)

	assert.True(t, fs.Exists(filepath.Join("session", "chunks", "chunk_0000.zst")))
	assert.True(t, fs.Exists(filepath.Join("session", "chunks", "chunk_0001.zst")))

	r, err := NewReplayer(fs, "session")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, n, r.Len())

	require.NoError(t, r.Seek(ChunkSize+5))
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(ChunkSize+6), e.KeyFrame.ID)

	require.NoError(t, r.Seek(2))
	e, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), e.KeyFrame.ID)

	assert.Error(t, r.Seek(n+1))
	assert.Error(t, r.Seek(-1))
}

func TestReplayer_SeekToTime(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", []Entry{
		KeyFrameEntry(smallKeyFrame(1, 0)),
		KeyFrameEntry(smallKeyFrame(2, 1)),
		KeyFrameEntry(smallKeyFrame(3, 2)),
		KeyFrameEntry(smallKeyFrame(4, 3)),
	})
	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()

	tests := []struct {
		at     float64
		wantID uint32
	}{
		{-1, 1},
		{0, 1},
		{1.5, 3},
		{2, 3},
		{3, 4},
	}
	for _, tt := range tests {
		r.SeekToTime(tt.at)
		e, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, tt.wantID, e.KeyFrame.ID, "SeekToTime(%v)", tt.at)
	}

	r.SeekToTime(10)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec, err := NewRecorder(fs, "s", "test")
	require.NoError(t, err)
	require.NoError(t, rec.Record(KeyFrameEntry(smallKeyFrame(1, 0))))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	assert.ErrorIs(t, rec.Record(KeyFrameEntry(smallKeyFrame(2, 1))), ErrClosed)
	assert.Equal(t, uint64(1), rec.Count())
}

func TestRecorder_RejectsIncompleteEntries(t *testing.T) {
	rec, err := NewRecorder(fsutil.NewMemoryFileSystem(), "s", "test")
	require.NoError(t, err)
	defer rec.Close()

	assert.Error(t, rec.Record(Entry{Kind: KindKeyFrame}))
	assert.Error(t, rec.Record(Entry{Kind: KindGraph}))
	assert.Error(t, rec.Record(Entry{Kind: "lidar"}))
	assert.Equal(t, uint64(0), rec.Count())
}

func TestNewReplayer_IndexMismatch(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", []Entry{
		KeyFrameEntry(smallKeyFrame(1, 0)),
		KeyFrameEntry(smallKeyFrame(2, 1)),
	})
	idx, err := fs.ReadFile(filepath.Join("s", "index.bin"))
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile(filepath.Join("s", "index.bin"), idx[:len(idx)-3], 0644))
	_, err = NewReplayer(fs, "s")
	assert.Error(t, err)

	entrySize := len(idx) / 2
	require.NoError(t, fs.WriteFile(filepath.Join("s", "index.bin"), idx[:entrySize], 0644))
	_, err = NewReplayer(fs, "s")
	assert.ErrorContains(t, err, "header declares 2")
}

func TestPlay_PacesByTimestamp(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	cfg := SynthConfig{KeyFrames: 10, Width: 8, Height: 6, FrameInterval: 0.5, GraphEvery: 5, Radius: 2}
	entries := Synthesize(cfg)
	require.Len(t, entries, 12)

	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", entries)
	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()

	clock := timeutil.NewMockClock(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	clock.SetAutoAdvance(true)

	g := graph.New(graph.DefaultDisplaySettings())
	n, err := Play(context.Background(), r, g, 2, clock)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, 10, g.Len())

	sleeps := clock.Sleeps()
	assert.Len(t, sleeps, 11)
	var total time.Duration
	for _, d := range sleeps {
		total += d
	}
	assert.InDelta(t, 4.75/2, total.Seconds(), 1e-6)

	// Chain plus loop closure from the second update.
	cs := g.Constraints()
	assert.Len(t, cs, 10)
	for _, c := range cs {
		assert.True(t, c.Resolved(), "constraint %d->%d", c.FromID, c.ToID)
	}
}

func TestPlay_UnpacedWhenRateNotPositive(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", []Entry{
		KeyFrameEntry(smallKeyFrame(1, 0)),
		KeyFrameEntry(smallKeyFrame(2, 100)),
	})
	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()

	clock := timeutil.NewMockClock(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	clock.SetAutoAdvance(true)
	g := graph.New(graph.DefaultDisplaySettings())

	n, err := Play(context.Background(), r, g, 0, clock)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, clock.Sleeps())
}

func TestPlay_StopsOnMalformedBatch(t *testing.T) {
	good := smallGraphUpdate(1, 1, 1)
	bad := good
	bad.NumConstraints = 3

	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", []Entry{
		KeyFrameEntry(smallKeyFrame(1, 0)),
		GraphEntry(bad),
		KeyFrameEntry(smallKeyFrame(2, 2)),
	})
	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()

	g := graph.New(graph.DefaultDisplaySettings())
	n, err := Play(context.Background(), r, g, 0, nil)
	assert.ErrorIs(t, err, graph.ErrMalformedBatch)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, g.Len())
	assert.Empty(t, g.Constraints())
}

func TestApply_EntryWithoutPayload(t *testing.T) {
	g := graph.New(graph.DefaultDisplaySettings())
	for _, kind := range []string{KindKeyFrame, KindGraph} {
		t.Run(kind, func(t *testing.T) {
			err := Apply(g, Entry{Kind: kind})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "without payload")
		})
	}
	assert.Error(t, Apply(g, Entry{Kind: "lidar"}))
	assert.Equal(t, 0, g.Len())
}

func TestPlay_EntryWithoutPayloadStops(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", []Entry{KeyFrameEntry(smallKeyFrame(1, 0))})

	// Replace the only stored entry with one that names a kind but carries
	// no payload.
	raw, err := json.Marshal(Entry{Kind: KindGraph, Time: 0})
	require.NoError(t, err)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())
	chunk := binary.LittleEndian.AppendUint32(nil, uint32(len(compressed)))
	chunk = append(chunk, compressed...)
	require.NoError(t, fs.WriteFile(chunkPath("s", 0), chunk, 0644))

	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()

	g := graph.New(graph.DefaultDisplaySettings())
	n, err := Play(context.Background(), r, g, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay entry 0")
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, g.Len())
}

func TestPlay_ContextCancelled(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeSession(t, fs, "s", []Entry{KeyFrameEntry(smallKeyFrame(1, 0))})
	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Play(ctx, r, graph.New(graph.DefaultDisplaySettings()), 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestTap_RecordsAndForwards(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec, err := NewRecorder(fs, "s", "tap")
	require.NoError(t, err)

	g := graph.New(graph.DefaultDisplaySettings())
	tap := &Tap{Sink: g, Recorder: rec}
	tap.AddKeyFrame(smallKeyFrame(1, 0))
	tap.AddKeyFrame(smallKeyFrame(2, 1))
	require.NoError(t, tap.AddGraphMessage(smallGraphUpdate(1.5, 1, 2)))
	require.NoError(t, rec.Close())

	assert.Equal(t, 2, g.Len())
	assert.Len(t, g.Constraints(), 1)

	r, err := NewReplayer(fs, "s")
	require.NoError(t, err)
	defer r.Close()
	got := readAll(t, r)
	require.Len(t, got, 3)
	assert.Equal(t, KindGraph, got[2].Kind)
}

func TestTap_RecordingFailureIsLoggedOnce(t *testing.T) {
	logs, restore := monitoring.Capture()
	defer restore()

	rec, err := NewRecorder(fsutil.NewMemoryFileSystem(), "s", "tap")
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	g := graph.New(graph.DefaultDisplaySettings())
	tap := &Tap{Sink: g, Recorder: rec}
	tap.AddKeyFrame(smallKeyFrame(1, 0))
	tap.AddKeyFrame(smallKeyFrame(2, 1))

	assert.Equal(t, 2, g.Len())
	n := 0
	for _, l := range logs.Lines() {
		if l == "recorder: recording stopped: "+ErrClosed.Error() {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestSynthesize_Deterministic(t *testing.T) {
	cfg := DefaultSynthConfig()
	a := Synthesize(cfg)
	b := Synthesize(cfg)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Synthesize not deterministic:\n%s", diff)
	}

	kfs := 0
	for _, e := range a {
		if e.Kind == KindKeyFrame {
			kfs++
			assert.Len(t, e.KeyFrame.PointCloud, cfg.Width*cfg.Height*keyframe.InputPointSize)
		}
	}
	assert.Equal(t, cfg.KeyFrames, kfs)
}
