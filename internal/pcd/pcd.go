// Package pcd writes and reads the binary point-cloud container produced by
// the viewer's export: a PCD v0.7 text header with fields x y z rgb followed
// by packed 16-byte little-endian records.
package pcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// RecordSize is the encoded size of one point: x, y, z float32 and a packed
// rgb uint32.
const RecordSize = 16

// Point is one exported point.
type Point struct {
	X, Y, Z float32
	RGB     uint32
}

// WriteHeader writes the container header declaring n points.
func WriteHeader(w io.Writer, n int) error {
	_, err := fmt.Fprintf(w, "# .PCD v0.7 - Point Cloud Data file format\n"+
		"VERSION 0.7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F F\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA binary\n", n, n)
	return err
}

// Builder accumulates the intermediate point stream of an export. The point
// count is derived from the stream length, so the header written by WriteTo
// always matches the body.
type Builder struct {
	buf bytes.Buffer
	rec [RecordSize]byte
}

// NewBuilder returns a builder sized for roughly n points.
func NewBuilder(n int) *Builder {
	b := &Builder{}
	if n > 0 {
		b.buf.Grow(n * RecordSize)
	}
	return b
}

// Add appends one point record.
func (b *Builder) Add(p Point) {
	binary.LittleEndian.PutUint32(b.rec[0:4], math.Float32bits(p.X))
	binary.LittleEndian.PutUint32(b.rec[4:8], math.Float32bits(p.Y))
	binary.LittleEndian.PutUint32(b.rec[8:12], math.Float32bits(p.Z))
	binary.LittleEndian.PutUint32(b.rec[12:16], p.RGB)
	b.buf.Write(b.rec[:])
}

// Count returns the number of records added so far.
func (b *Builder) Count() int {
	return b.buf.Len() / RecordSize
}

// Body returns the raw intermediate stream. The slice aliases the builder.
func (b *Builder) Body() []byte {
	return b.buf.Bytes()
}

// Reset discards the intermediate stream.
func (b *Builder) Reset() {
	b.buf.Reset()
}

// WriteTo writes the header followed by the intermediate stream verbatim.
// The builder is left intact so the same content can be written again.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := WriteHeader(cw, b.Count()); err != nil {
		return cw.n, err
	}
	if _, err := cw.Write(b.buf.Bytes()); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
