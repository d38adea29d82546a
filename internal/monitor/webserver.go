// Package monitor serves the viewer's HTTP interface: health, JSON views of
// the pose graph, export control, debug charts and Prometheus metrics.
package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/banshee-data/slam.viewer/internal/exporter"
	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

//go:embed status.html
var statusHTML embed.FS

// History is the persisted side of the monitor. *sqlite.DB implements it.
type History interface {
	ListExports(ctx context.Context, limit int) ([]exporter.ExportRecord, error)
	RecentStatsSamples(ctx context.Context, limit int) ([]graph.StatsSample, error)
}

// WebServer handles the HTTP interface of the viewer.
type WebServer struct {
	address   string
	graph     *graph.KeyFrameGraph
	exporter  *exporter.Exporter
	history   History
	limiter   *rate.Limiter
	startTime time.Time
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Graph    *graph.KeyFrameGraph
	Exporter *exporter.Exporter
	// History is optional; history endpoints return 503 without it.
	History History
	// ExportRate limits manual exports per second. Defaults to one every
	// five seconds with a burst of one.
	ExportRate  rate.Limit
	ExportBurst int
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	if config.ExportRate == 0 {
		config.ExportRate = rate.Every(5 * time.Second)
	}
	if config.ExportBurst <= 0 {
		config.ExportBurst = 1
	}
	ws := &WebServer{
		address:   config.Address,
		graph:     config.Graph,
		exporter:  config.Exporter,
		history:   config.History,
		limiter:   rate.NewLimiter(config.ExportRate, config.ExportBurst),
		startTime: time.Now(),
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/keyframes", ws.handleKeyFrames)
	mux.HandleFunc("/api/constraints", ws.handleConstraints)
	mux.HandleFunc("/api/export", ws.handleExport)
	mux.HandleFunc("/api/exports", ws.handleExports)
	mux.HandleFunc("/api/print", ws.handlePrint)
	mux.HandleFunc("/download/latest.pcd", ws.handleDownloadLatest)
	mux.HandleFunc("/debug/constraints", ws.handleConstraintChart)
	mux.HandleFunc("/debug/stats", ws.handleStatsChart)
	mux.HandleFunc("/debug/trajectory.png", ws.handleTrajectoryPlot)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("HTTP server routine stopped")
	return nil
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "slam-viewer", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Version     string
		HTTPAddress string
		Uptime      string
		Stats       graph.Stats
		Settings    graph.DisplaySettings
		ExportPath  string
		LastExport  *exporter.ExportRecord
	}{
		Version:     version.Version,
		HTTPAddress: ws.address,
		Uptime:      time.Since(ws.startTime).Round(time.Second).String(),
		Stats:       ws.graph.Stats(),
		Settings:    ws.graph.DisplaySettings(),
	}
	if ws.exporter != nil {
		data.ExportPath = ws.exporter.Path()
		if rec, ok := ws.exporter.Last(); ok {
			data.LastExport = &rec
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}
