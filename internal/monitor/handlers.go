package monitor

import (
	"net/http"
	"strconv"

	"github.com/banshee-data/slam.viewer/internal/exporter"
	"github.com/banshee-data/slam.viewer/internal/httputil"
	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/banshee-data/slam.viewer/internal/security"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

func listLimit(r *http.Request) int {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = min(v, maxListLimit)
		}
	}
	return limit
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, ws.graph.Stats())
}

// handleKeyFrames lists keyframe summaries, or one keyframe with ?id=.
func (ws *WebServer) handleKeyFrames(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s := r.URL.Query().Get("id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			httputil.BadRequest(w, "invalid 'id' parameter")
			return
		}
		kf, ok := ws.graph.KeyFrame(uint32(id))
		if !ok {
			httputil.NotFound(w, "keyframe not found")
			return
		}
		httputil.WriteJSONOK(w, kf)
		return
	}
	httputil.WriteJSONOK(w, ws.graph.Summaries())
}

type constraintView struct {
	From        uint32  `json:"from"`
	To          uint32  `json:"to"`
	Err         float32 `json:"err"`
	Resolved    bool    `json:"resolved"`
	ColorScalar float64 `json:"color_scalar"`
}

func (ws *WebServer) handleConstraints(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	scale := ws.graph.DisplaySettings().ConstraintErrScale
	cs := ws.graph.Constraints()
	out := make([]constraintView, len(cs))
	for i, c := range cs {
		out[i] = constraintView{
			From:        c.FromID,
			To:          c.ToID,
			Err:         c.Err,
			Resolved:    c.Resolved(),
			ColorScalar: c.ColorScalar(scale),
		}
	}
	httputil.WriteJSONOK(w, out)
}

// handleExport writes the point cloud now. Requests beyond the configured
// rate are refused with 429.
func (ws *WebServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if ws.exporter == nil {
		httputil.ServiceUnavailable(w, "export not configured")
		return
	}
	if !ws.limiter.Allow() {
		httputil.WriteJSONError(w, http.StatusTooManyRequests, "export already requested recently")
		return
	}
	rec, err := ws.exporter.Flush(r.Context(), ws.graph, exporter.ReasonManual)
	if err != nil {
		monitoring.Logf("monitor: manual export failed: %v", err)
		httputil.InternalServerError(w, "export failed: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (ws *WebServer) handleExports(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if ws.history == nil {
		httputil.ServiceUnavailable(w, "no database configured")
		return
	}
	recs, err := ws.history.ListExports(r.Context(), listLimit(r))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if recs == nil {
		recs = []exporter.ExportRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}

// handlePrint asks the next draw pass to log the aggregate counters.
func (ws *WebServer) handlePrint(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	ws.graph.RequestPrintNumbers()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// handleDownloadLatest serves the current export file. The path comes from
// the exporter and is still checked against its directory before serving.
func (ws *WebServer) handleDownloadLatest(w http.ResponseWriter, r *http.Request) {
	if ws.exporter == nil {
		httputil.ServiceUnavailable(w, "export not configured")
		return
	}
	rec, ok := ws.exporter.Last()
	if !ok {
		httputil.NotFound(w, "no export yet")
		return
	}
	if err := security.ValidatePathWithinDirectory(rec.Path, ws.exporter.Dir()); err != nil {
		monitoring.Logf("monitor: refusing download of %s: %v", rec.Path, err)
		httputil.WriteJSONError(w, http.StatusForbidden, "export path outside export directory")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+security.SanitizeFilename(rec.ID)+".pcd\"")
	http.ServeFile(w, r, rec.Path)
}
