// Package recorder records the ingestion stream of a SLAM session to disk
// and replays it into a graph.
//
// A session is a directory holding header.json, index.bin and chunk files
// under chunks/. Each chunk is a sequence of records, a little-endian uint32
// length followed by one zstd-compressed JSON Entry.
package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/slam.viewer/internal/fsutil"
	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/keyframe"
	"github.com/klauspost/compress/zstd"
)

// ChunkSize is the number of entries per chunk file.
const ChunkSize = 500

// FormatVersion is written to every header.
const FormatVersion = "1.0"

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("recorder: closed")

// Entry kinds.
const (
	KindKeyFrame = "keyframe"
	KindGraph    = "graph"
)

// Entry is one recorded ingestion message.
type Entry struct {
	Kind     string              `json:"kind"`
	Time     float64             `json:"time"`
	KeyFrame *keyframe.Message   `json:"keyframe,omitempty"`
	Graph    *graph.GraphMessage `json:"graph,omitempty"`
}

// KeyFrameEntry wraps a keyframe message.
func KeyFrameEntry(msg keyframe.Message) Entry {
	return Entry{Kind: KindKeyFrame, Time: msg.Time, KeyFrame: &msg}
}

// GraphEntry wraps a graph message.
func GraphEntry(msg graph.GraphMessage) Entry {
	return Entry{Kind: KindGraph, Time: msg.Time, Graph: &msg}
}

// Header describes a recorded session.
type Header struct {
	Version      string  `json:"version"`
	CreatedNs    int64   `json:"created_ns"`
	Source       string  `json:"source"`
	TotalEntries uint64  `json:"total_entries"`
	KeyFrames    uint64  `json:"keyframes"`
	GraphUpdates uint64  `json:"graph_updates"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
}

// IndexEntry locates one entry.
type IndexEntry struct {
	Seq     uint64
	TimeNs  int64
	ChunkID uint32
	Offset  uint32
}

func chunkPath(base string, id int) string {
	return filepath.Join(base, "chunks", fmt.Sprintf("chunk_%04d.zst", id))
}

// Recorder appends entries to a session directory.
type Recorder struct {
	fs       fsutil.FileSystem
	basePath string

	enc *zstd.Encoder

	header       Header
	index        []IndexEntry
	currentChunk int
	chunk        io.WriteCloser
	chunkOffset  uint32

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a session directory at basePath. A nil fs uses the
// OS filesystem.
func NewRecorder(fs fsutil.FileSystem, basePath, source string) (*Recorder, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(filepath.Join(basePath, "chunks"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Recorder{
		fs:           fs,
		basePath:     basePath,
		enc:          enc,
		currentChunk: -1,
		header: Header{
			Version:   FormatVersion,
			CreatedNs: time.Now().UnixNano(),
			Source:    source,
		},
	}, nil
}

// Record appends one entry.
func (r *Recorder) Record(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	switch e.Kind {
	case KindKeyFrame:
		if e.KeyFrame == nil {
			return fmt.Errorf("recorder: keyframe entry without message")
		}
	case KindGraph:
		if e.Graph == nil {
			return fmt.Errorf("recorder: graph entry without message")
		}
	default:
		return fmt.Errorf("recorder: unknown entry kind %q", e.Kind)
	}

	seq := r.header.TotalEntries
	chunkIdx := int(seq / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}
	data := r.enc.EncodeAll(raw, nil)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := r.chunk.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("failed to write entry length: %w", err)
	}
	if _, err := r.chunk.Write(data); err != nil {
		return fmt.Errorf("failed to write entry data: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		Seq:     seq,
		TimeNs:  int64(e.Time * 1e9),
		ChunkID: uint32(chunkIdx),
		Offset:  r.chunkOffset,
	})
	r.chunkOffset += uint32(4 + len(data))

	if seq == 0 {
		r.header.StartTime = e.Time
	}
	r.header.EndTime = e.Time
	r.header.TotalEntries++
	if e.Kind == KindKeyFrame {
		r.header.KeyFrames++
	} else {
		r.header.GraphUpdates++
	}
	return nil
}

func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunk != nil {
		if err := r.chunk.Close(); err != nil {
			return err
		}
	}
	w, err := r.fs.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	r.chunk = w
	r.currentChunk = chunkIdx
	r.chunkOffset = 0
	return nil
}

// Close finalises the session and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	defer r.enc.Close()

	if r.chunk != nil {
		if err := r.chunk.Close(); err != nil {
			return fmt.Errorf("failed to close chunk: %w", err)
		}
	}

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := writeAll(r.fs, filepath.Join(r.basePath, "header.json"), headerData); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var buf bytes.Buffer
	for _, entry := range r.index {
		if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
			return err
		}
	}
	if err := writeAll(r.fs, filepath.Join(r.basePath, "index.bin"), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

func writeAll(fs fsutil.FileSystem, path string, data []byte) error {
	w, err := fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Path returns the session directory.
func (r *Recorder) Path() string {
	return r.basePath
}

// Count returns the number of entries recorded.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.TotalEntries
}
