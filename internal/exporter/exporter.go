// Package exporter writes the graph's point cloud to disk as a PCD file and
// keeps a journal of completed exports.
package exporter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/slam.viewer/internal/fsutil"
	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/security"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
	"github.com/google/uuid"
)

// ErrNoExportDir is returned by New when no output directory is configured.
var ErrNoExportDir = errors.New("exporter: no export directory configured")

// Export reasons recorded in the journal.
const (
	ReasonManual   = "manual"
	ReasonPeriodic = "periodic"
	ReasonFinal    = "final"
	ReasonDraw     = "draw"
)

// ExportRecord describes one completed export.
type ExportRecord struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Reason    string        `json:"reason"`
	KeyFrames int           `json:"keyframes"`
	Points    int           `json:"points"`
	Bytes     int64         `json:"bytes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	ObjectURL string        `json:"object_url,omitempty"`
}

// pending is a written export awaiting upload and journaling. snapshot is
// the private copy handed to the uploader, empty when there is none.
type pending struct {
	rec      ExportRecord
	snapshot string
}

// Journal stores export records.
type Journal interface {
	InsertExport(ctx context.Context, rec ExportRecord) error
}

// Uploader copies a finished export to remote storage and returns its
// location.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, size int64, objectName string) (string, error)
}

// Source is the graph side of an export: it calls the sink's
// WritePointCloud while holding its lock. *graph.KeyFrameGraph implements it.
type Source interface {
	Export(sink graph.PointCloudSink) error
}

// Config configures an Exporter.
type Config struct {
	// Dir is the output directory; it is created on first export.
	Dir string
	// Name is the output file name. Defaults to "pc.pcd".
	Name string
	// FS defaults to the OS filesystem.
	FS fsutil.FileSystem
	// Clock defaults to the real clock.
	Clock timeutil.Clock
	// Journal and Uploader are optional.
	Journal  Journal
	Uploader Uploader
}

// Exporter writes the point cloud to <Dir>/<Name>. Each export is written
// to <Name>.tmp and renamed over the previous output, so readers never see
// a partial file.
type Exporter struct {
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	dir      string
	name     string
	journal  Journal
	uploader Uploader

	queue chan pending

	mu   sync.Mutex
	last *ExportRecord
}

// New validates cfg and returns an Exporter.
func New(cfg Config) (*Exporter, error) {
	if cfg.Dir == "" {
		return nil, ErrNoExportDir
	}
	if cfg.Name == "" {
		cfg.Name = "pc.pcd"
	}
	if err := security.ValidateExportName(cfg.Name); err != nil {
		return nil, fmt.Errorf("exporter: %w", err)
	}
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Exporter{
		fs:       cfg.FS,
		clock:    cfg.Clock,
		dir:      filepath.Clean(cfg.Dir),
		name:     cfg.Name,
		journal:  cfg.Journal,
		uploader: cfg.Uploader,
		queue:    make(chan pending, 16),
	}, nil
}

// Path returns the final output path.
func (e *Exporter) Path() string {
	return filepath.Join(e.dir, e.name)
}

// Dir returns the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Last returns the most recent successful export.
func (e *Exporter) Last() (ExportRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return ExportRecord{}, false
	}
	return *e.last, true
}

// Flush exports src now. The file is written while src holds its lock;
// journaling and upload happen afterwards and their failures are logged,
// not returned.
func (e *Exporter) Flush(ctx context.Context, src Source, reason string) (ExportRecord, error) {
	s := &fileSink{e: e, reason: reason}
	if err := src.Export(s); err != nil {
		return ExportRecord{}, err
	}
	e.finish(ctx, &s.rec, s.snapshot)
	return s.rec, nil
}

// Deferred returns a sink for graph.RequestFlush. The file is written
// during the next draw pass; the record is then finished by Run.
func (e *Exporter) Deferred(reason string) graph.PointCloudSink {
	return &fileSink{e: e, reason: reason, deferred: true}
}

// Run finishes deferred exports until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-e.queue:
			e.finish(ctx, &p.rec, p.snapshot)
		}
	}
}

type fileSink struct {
	e        *Exporter
	reason   string
	deferred bool
	rec      ExportRecord
	snapshot string
}

func (s *fileSink) WritePointCloud(write func(w io.Writer) (graph.ExportSummary, error)) error {
	rec, snapshot, err := s.e.writeFile(write, s.reason)
	if err != nil {
		return err
	}
	s.rec, s.snapshot = rec, snapshot
	if s.deferred {
		select {
		case s.e.queue <- pending{rec: rec, snapshot: snapshot}:
		default:
			monitoring.Logf("exporter: finish queue full, export %s not journaled", rec.ID)
			if snapshot != "" {
				s.e.discardSnapshot(snapshot)
			}
		}
	}
	return nil
}

// writeFile writes the export and returns its record and the path of the
// upload snapshot, if any.
func (e *Exporter) writeFile(write func(w io.Writer) (graph.ExportSummary, error), reason string) (ExportRecord, string, error) {
	start := e.clock.Now()
	id := uuid.NewString()
	final := e.Path()
	tmp := final + ".tmp"

	if err := e.fs.MkdirAll(e.dir, 0755); err != nil {
		exportFailures.Inc()
		return ExportRecord{}, "", fmt.Errorf("exporter: creating %s: %w", e.dir, err)
	}
	if err := e.checkDir(final); err != nil {
		exportFailures.Inc()
		return ExportRecord{}, "", err
	}

	monitoring.Logf("Flushing Pointcloud to %s", final)

	f, err := e.fs.Create(tmp)
	if err != nil {
		exportFailures.Inc()
		return ExportRecord{}, "", fmt.Errorf("exporter: creating %s: %w", tmp, err)
	}
	snap := e.openSnapshot(final, id)

	var out io.Writer = f
	if snap != nil {
		out = io.MultiWriter(f, snap)
	}
	bw := bufio.NewWriterSize(out, 1<<20)
	sum, err := write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if snap != nil {
		if serr := snap.Close(); serr != nil && err == nil {
			monitoring.Logf("exporter: closing upload snapshot %s: %v", snap.path, serr)
			e.discardSnapshot(snap.path)
			snap = nil
		}
	}
	if err != nil {
		exportFailures.Inc()
		if rerr := e.fs.Remove(tmp); rerr != nil {
			monitoring.Logf("exporter: removing %s: %v", tmp, rerr)
		}
		if snap != nil {
			e.discardSnapshot(snap.path)
		}
		return ExportRecord{}, "", fmt.Errorf("exporter: writing %s: %w", tmp, err)
	}
	if err := e.fs.Rename(tmp, final); err != nil {
		exportFailures.Inc()
		if snap != nil {
			e.discardSnapshot(snap.path)
		}
		return ExportRecord{}, "", fmt.Errorf("exporter: renaming %s: %w", tmp, err)
	}

	monitoring.Logf("Done Flushing Pointcloud with %d points", sum.Points)

	rec := ExportRecord{
		ID:        id,
		Path:      final,
		Reason:    reason,
		KeyFrames: sum.KeyFrames,
		Points:    sum.Points,
		Bytes:     sum.Bytes,
		StartedAt: start,
		Duration:  e.clock.Since(start),
	}
	exportsTotal.WithLabelValues(reason).Inc()
	exportPoints.Set(float64(sum.Points))
	exportDuration.Observe(rec.Duration.Seconds())

	e.mu.Lock()
	e.last = &rec
	e.mu.Unlock()

	snapshot := ""
	if snap != nil {
		snapshot = snap.path
	}
	return rec, snapshot, nil
}

// checkDir rejects an output path that resolves outside the export
// directory, for example through a symlink planted at the final name. Only
// paths on the OS filesystem can be resolved.
func (e *Exporter) checkDir(final string) error {
	if _, ok := e.fs.(fsutil.OSFileSystem); !ok {
		return nil
	}
	if err := security.ValidatePathWithinDirectory(final, e.dir); err != nil {
		return fmt.Errorf("exporter: %w", err)
	}
	return nil
}

type snapshotFile struct {
	io.WriteCloser
	path string
}

// openSnapshot starts a private copy of the export for the uploader, so a
// later export renamed over the final path cannot change what is uploaded.
// It returns nil when no uploader is configured or the copy cannot be
// created, in which case the export is written but not uploaded.
func (e *Exporter) openSnapshot(final, id string) *snapshotFile {
	if e.uploader == nil {
		return nil
	}
	path := final + "." + id[:8] + ".upload"
	w, err := e.fs.Create(path)
	if err != nil {
		monitoring.Logf("exporter: creating upload snapshot %s: %v", path, err)
		return nil
	}
	return &snapshotFile{WriteCloser: w, path: path}
}

func (e *Exporter) discardSnapshot(path string) {
	if err := e.fs.Remove(path); err != nil {
		monitoring.Logf("exporter: removing %s: %v", path, err)
	}
}

// finish uploads and journals rec. Failures are logged.
func (e *Exporter) finish(ctx context.Context, rec *ExportRecord, snapshot string) {
	if e.uploader != nil {
		if url, err := e.upload(ctx, rec, snapshot); err != nil {
			uploadFailures.Inc()
			monitoring.Logf("exporter: upload of %s failed: %v", rec.Path, err)
		} else {
			rec.ObjectURL = url
			e.mu.Lock()
			if e.last != nil && e.last.ID == rec.ID {
				e.last.ObjectURL = url
			}
			e.mu.Unlock()
		}
	}
	if e.journal != nil {
		if err := e.journal.InsertExport(ctx, *rec); err != nil {
			monitoring.Logf("exporter: journaling export %s failed: %v", rec.ID, err)
		}
	}
}

func (e *Exporter) upload(ctx context.Context, rec *ExportRecord, snapshot string) (string, error) {
	if snapshot == "" {
		return "", fmt.Errorf("no upload snapshot for export %s", rec.ID)
	}
	defer e.discardSnapshot(snapshot)

	f, err := e.fs.Open(snapshot)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() != rec.Bytes {
		return "", fmt.Errorf("snapshot %s is %d bytes, export wrote %d", snapshot, info.Size(), rec.Bytes)
	}
	object := security.SanitizeFilename(rec.StartedAt.UTC().Format("20060102T150405Z") + "-" + rec.ID[:8] + "-" + e.name)
	return e.uploader.Upload(ctx, f, info.Size(), object)
}
