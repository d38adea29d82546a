package pcd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Header is the parsed text header of a container.
type Header struct {
	Version   string
	Fields    []string
	Width     int
	Height    int
	Viewpoint string
	Points    int
	Data      string
}

// Cloud is a decoded container.
type Cloud struct {
	Header Header
	Points []Point
}

// ReadHeader parses header lines up to and including DATA.
func ReadHeader(r *bufio.Reader) (Header, error) {
	var h Header
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return h, fmt.Errorf("pcd: reading header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "VERSION":
			h.Version = value
		case "FIELDS":
			h.Fields = strings.Fields(value)
		case "SIZE", "TYPE", "COUNT":
			// Fixed layout; validated through RecordSize below.
		case "WIDTH":
			if h.Width, err = strconv.Atoi(value); err != nil {
				return h, fmt.Errorf("pcd: bad WIDTH %q: %w", value, err)
			}
		case "HEIGHT":
			if h.Height, err = strconv.Atoi(value); err != nil {
				return h, fmt.Errorf("pcd: bad HEIGHT %q: %w", value, err)
			}
		case "VIEWPOINT":
			h.Viewpoint = value
		case "POINTS":
			if h.Points, err = strconv.Atoi(value); err != nil {
				return h, fmt.Errorf("pcd: bad POINTS %q: %w", value, err)
			}
		case "DATA":
			h.Data = value
			return h, nil
		default:
			return h, fmt.Errorf("pcd: unknown header key %q", key)
		}
	}
}

// Decode reads a complete binary container. The body must hold exactly
// POINTS records.
func Decode(r io.Reader) (*Cloud, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if h.Data != "binary" {
		return nil, fmt.Errorf("pcd: unsupported DATA %q", h.Data)
	}
	if strings.Join(h.Fields, " ") != "x y z rgb" {
		return nil, fmt.Errorf("pcd: unsupported FIELDS %v", h.Fields)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("pcd: reading body: %w", err)
	}
	if len(body) != h.Points*RecordSize {
		return nil, fmt.Errorf("pcd: body holds %d bytes, header declares %d points (%d bytes)",
			len(body), h.Points, h.Points*RecordSize)
	}

	c := &Cloud{Header: h, Points: make([]Point, h.Points)}
	for i := range c.Points {
		b := body[i*RecordSize:]
		c.Points[i] = Point{
			X:   math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
			Y:   math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
			Z:   math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
			RGB: binary.LittleEndian.Uint32(b[12:16]),
		}
	}
	return c, nil
}
