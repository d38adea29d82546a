// Command slam-viewer maintains the live keyframe graph of a SLAM session,
// exports its point cloud and serves the monitoring interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/slam.viewer/internal/config"
	"github.com/banshee-data/slam.viewer/internal/exporter"
	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/monitor"
	"github.com/banshee-data/slam.viewer/internal/recorder"
	"github.com/banshee-data/slam.viewer/internal/storage/sqlite"
	"github.com/banshee-data/slam.viewer/internal/timeutil"
	"github.com/banshee-data/slam.viewer/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Path to the viewer JSON configuration")
	dbFile       = flag.String("db", "slam_viewer.db", "Path to the SQLite database file (empty disables history)")
	listen       = flag.String("listen", ":8082", "HTTP listen address")
	sessionDir   = flag.String("session", "", "Session directory to replay (default: a synthetic session)")
	recordDir    = flag.String("record", "", "Record ingested messages to this session directory")
	replayRate   = flag.Float64("rate", 1.0, "Replay speed multiplier (0 = as fast as possible)")
	drawInterval = flag.Duration("draw-interval", 100*time.Millisecond, "Interval between draw passes")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *drawInterval <= 0 {
		log.Fatal("-draw-interval must be positive")
	}

	if err := run(); err != nil {
		log.Fatalf("slam-viewer: %v", err)
	}
}

func loadConfig(path string) (*config.ViewerConfig, bool, error) {
	if path == "" {
		return config.EmptyViewerConfig(), false, nil
	}
	cfg, err := config.LoadViewerConfig(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultConfigPath {
		log.Printf("No configuration at %s, using defaults", path)
		return config.EmptyViewerConfig(), false, nil
	}
	return nil, false, err
}

func run() error {
	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	g := graph.New(cfg.DisplaySettings())

	var db *sqlite.DB
	if *dbFile != "" {
		db, err = sqlite.Open(*dbFile)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	expCfg := exporter.Config{
		Dir:  cfg.GetExportDir(),
		Name: cfg.GetExportName(),
	}
	if db != nil {
		expCfg.Journal = db
	}
	if cfg.UploadEnabled() {
		up := cfg.GetUpload()
		uploader, err := exporter.NewMinioUploader(exporter.MinioConfig{
			Endpoint:  up.Endpoint,
			AccessKey: up.AccessKey,
			SecretKey: up.SecretKey,
			Bucket:    up.Bucket,
			Prefix:    up.Prefix,
			UseSSL:    up.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to create uploader: %w", err)
		}
		expCfg.Uploader = uploader
		log.Printf("Uploading exports to %s/%s", up.Endpoint, up.Bucket)
	}
	exp, err := exporter.New(expCfg)
	if err != nil {
		return err
	}
	log.Printf("Exporting point cloud to %s", exp.Path())

	if err := monitor.RegisterGraphMetrics(prometheus.DefaultRegisterer, g); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(sigCtx)

	flusher := exporter.NewFlusher(exporter.FlusherConfig{
		Exporter: exp,
		Source:   g,
		Interval: cfg.GetFlushInterval(),
	})
	eg.Go(func() error { return flusher.Run(ctx) })
	eg.Go(func() error { return exp.Run(ctx) })

	if watch {
		w, err := config.NewWatcher(*configPath, func(next *config.ViewerConfig) {
			g.SetDisplaySettings(next.DisplaySettings())
		})
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		eg.Go(func() error { return w.Run(ctx) })
	}

	eg.Go(func() error { return ingest(ctx, g) })
	eg.Go(func() error { return drawLoop(ctx, g, *drawInterval) })
	eg.Go(func() error { return handleSignals(ctx, g, exp) })

	var history monitor.History
	if db != nil {
		history = db
		sampler := monitor.NewStatsSampler(g, db, cfg.GetStatsInterval(), 24*time.Hour, nil)
		eg.Go(func() error { return sampler.Run(ctx) })
	}

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:  *listen,
		Graph:    g,
		Exporter: exp,
		History:  history,
	})
	eg.Go(func() error { return ws.Start(ctx) })

	err = eg.Wait()
	log.Printf("slam-viewer stopped")
	return err
}

// ingest replays the session into the graph, recording it again when
// -record is set. The viewer keeps serving after the session ends.
func ingest(ctx context.Context, g *graph.KeyFrameGraph) error {
	dir := *sessionDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "slam-session-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = filepath.Join(tmp, "synthetic")
		rec, err := recorder.NewRecorder(nil, dir, "synthetic")
		if err != nil {
			return err
		}
		if err := recorder.WriteSession(rec, recorder.Synthesize(recorder.DefaultSynthConfig())); err != nil {
			return fmt.Errorf("writing synthetic session: %w", err)
		}
		log.Printf("Replaying synthetic session")
	}

	r, err := recorder.NewReplayer(nil, dir)
	if err != nil {
		return err
	}
	defer r.Close()

	var sink recorder.Sink = g
	if *recordDir != "" {
		rec, err := recorder.NewRecorder(nil, *recordDir, dir)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("Failed to close recording: %v", err)
			}
		}()
		sink = &recorder.Tap{Sink: g, Recorder: rec}
	}

	h := r.Header()
	log.Printf("Replaying %d entries (%d keyframes) from %s at %.2fx", h.TotalEntries, h.KeyFrames, dir, *replayRate)
	n, err := recorder.Play(ctx, r, sink, *replayRate, timeutil.RealClock{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("Session replay finished: %d entries", n)
	return nil
}

// drawLoop runs the periodic render pass against a headless renderer.
func drawLoop(ctx context.Context, g *graph.KeyFrameGraph, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r := &headlessRenderer{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reset()
			// Flush failures are already logged by the graph.
			_ = g.Draw(r)
		}
	}
}

// handleSignals maps SIGUSR1 to a flush on the next draw pass and SIGUSR2
// to the aggregate counters line.
func handleSignals(ctx context.Context, g *graph.KeyFrameGraph, exp *exporter.Exporter) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			switch sig {
			case syscall.SIGUSR1:
				g.RequestFlush(exp.Deferred(exporter.ReasonDraw))
			case syscall.SIGUSR2:
				g.RequestPrintNumbers()
			}
		}
	}
}
