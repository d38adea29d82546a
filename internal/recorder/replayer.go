package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/banshee-data/slam.viewer/internal/fsutil"
	"github.com/klauspost/compress/zstd"
)

// Replayer reads entries from a session directory.
type Replayer struct {
	fs       fsutil.FileSystem
	basePath string
	header   Header
	index    []IndexEntry
	dec      *zstd.Decoder

	mu           sync.Mutex
	current      int
	currentChunk int
	chunkData    []byte
}

// NewReplayer opens a session. A nil fs uses the OS filesystem.
func NewReplayer(fs fsutil.FileSystem, basePath string) (*Replayer, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	r := &Replayer{fs: fs, basePath: basePath, currentChunk: -1}

	headerData, err := fs.ReadFile(filepath.Join(basePath, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if r.header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported session version %q", r.header.Version)
	}

	indexData, err := fs.ReadFile(filepath.Join(basePath, "index.bin"))
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	entrySize := binary.Size(IndexEntry{})
	if len(indexData)%entrySize != 0 {
		return nil, fmt.Errorf("index size %d is not a multiple of %d", len(indexData), entrySize)
	}
	r.index = make([]IndexEntry, len(indexData)/entrySize)
	if err := binary.Read(bytes.NewReader(indexData), binary.LittleEndian, r.index); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	if uint64(len(r.index)) != r.header.TotalEntries {
		return nil, fmt.Errorf("index holds %d entries, header declares %d", len(r.index), r.header.TotalEntries)
	}

	r.dec, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return r, nil
}

// Header returns the session header.
func (r *Replayer) Header() Header {
	return r.header
}

// Len returns the number of entries.
func (r *Replayer) Len() int {
	return len(r.index)
}

// Position returns the index of the next entry Next will return.
func (r *Replayer) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Seek positions the replayer at entry i.
func (r *Replayer) Seek(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i > len(r.index) {
		return fmt.Errorf("entry index out of range: %d (have %d)", i, len(r.index))
	}
	r.current = i
	return nil
}

// SeekToTime positions the replayer at the first entry at or after t
// seconds.
func (r *Replayer) SeekToTime(t float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns := int64(t * 1e9)
	r.current = sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimeNs >= ns
	})
}

// Next returns the next entry, or io.EOF at the end of the session.
func (r *Replayer) Next() (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current >= len(r.index) {
		return Entry{}, io.EOF
	}
	ie := r.index[r.current]
	if int(ie.ChunkID) != r.currentChunk {
		data, err := r.fs.ReadFile(chunkPath(r.basePath, int(ie.ChunkID)))
		if err != nil {
			return Entry{}, fmt.Errorf("failed to read chunk: %w", err)
		}
		r.chunkData = data
		r.currentChunk = int(ie.ChunkID)
	}

	off := int(ie.Offset)
	if off+4 > len(r.chunkData) {
		return Entry{}, fmt.Errorf("entry %d: invalid offset %d", ie.Seq, off)
	}
	n := int(binary.LittleEndian.Uint32(r.chunkData[off:]))
	off += 4
	if off+n > len(r.chunkData) {
		return Entry{}, fmt.Errorf("entry %d: invalid length %d", ie.Seq, n)
	}
	raw, err := r.dec.DecodeAll(r.chunkData[off:off+n], nil)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: decompress: %w", ie.Seq, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("entry %d: decode: %w", ie.Seq, err)
	}
	r.current++
	return e, nil
}

// Close releases the decoder.
func (r *Replayer) Close() error {
	r.dec.Close()
	return nil
}
