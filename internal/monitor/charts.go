package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"net/http"

	"github.com/banshee-data/slam.viewer/internal/graph"
	"github.com/banshee-data/slam.viewer/internal/httputil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleConstraintChart renders the residual of every resolved constraint
// as a bar chart, coloured the same way the renderer colours edges.
func (ws *WebServer) handleConstraintChart(w http.ResponseWriter, r *http.Request) {
	scale := ws.graph.DisplaySettings().ConstraintErrScale

	var labels []string
	var data []opts.BarData
	for _, c := range ws.graph.Constraints() {
		if !c.Resolved() {
			continue
		}
		labels = append(labels, fmt.Sprintf("%d-%d", c.FromID, c.ToID))
		data = append(data, opts.BarData{
			Value:     c.Err,
			ItemStyle: &opts.ItemStyle{Color: constraintColor(c.ColorScalar(scale))},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Constraints", Width: "100%", Height: "640px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Constraint residuals", Subtitle: fmt.Sprintf("resolved=%d scale=%.3f", len(data), scale)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "from-to"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "residual"}),
	)
	bar.SetXAxis(labels).AddSeries("residual", data)

	ws.renderPage(w, bar)
}

// constraintColor maps a colour scalar in [0,1] from green to red.
func constraintColor(s float64) string {
	red := int(255 * s)
	return fmt.Sprintf("#%02x%02x00", red, 255-red)
}

// handleStatsChart renders the sampled point and keyframe counts.
func (ws *WebServer) handleStatsChart(w http.ResponseWriter, r *http.Request) {
	if ws.history == nil {
		httputil.ServiceUnavailable(w, "no database configured")
		return
	}
	samples, err := ws.history.RecentStatsSamples(r.Context(), 720)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	x := make([]string, len(samples))
	total := make([]opts.LineData, len(samples))
	visible := make([]opts.LineData, len(samples))
	kfs := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = s.Time.Format("15:04:05")
		total[i] = opts.LineData{Value: s.TotalPoints}
		visible[i] = opts.LineData{Value: s.VisiblePoints}
		kfs[i] = opts.LineData{Value: s.KeyFrames}
	}

	points := charts.NewLine()
	points.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Points", Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	points.SetXAxis(x).
		AddSeries("total", total).
		AddSeries("displayed", visible)

	keyframes := charts.NewLine()
	keyframes.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Keyframes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	keyframes.SetXAxis(x).AddSeries("keyframes", kfs)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(points, keyframes)

	ws.renderPage(w, page)
}

type renderer interface {
	Render(w io.Writer) error
}

func (ws *WebServer) renderPage(w http.ResponseWriter, chart renderer) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrajectoryPlot draws a top-down (X/Z) PNG of keyframe positions
// and resolved constraints.
func (ws *WebServer) handleTrajectoryPlot(w http.ResponseWriter, r *http.Request) {
	p, err := trajectoryPlot(ws.graph.Summaries(), ws.graph.Constraints())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func trajectoryPlot(kfs []graph.KeyFrameSummary, cs []graph.Constraint) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectory (%d keyframes)", len(kfs))
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"
	p.Add(plotter.NewGrid())

	byID := make(map[uint32]graph.KeyFrameSummary, len(kfs))
	for _, kf := range kfs {
		byID[kf.ID] = kf
	}

	for _, c := range cs {
		if !c.Resolved() {
			continue
		}
		from, to := byID[c.FromID], byID[c.ToID]
		edge, err := plotter.NewLine(plotter.XYs{{X: from.X, Y: from.Z}, {X: to.X, Y: to.Z}})
		if err != nil {
			return nil, err
		}
		edge.Color = color.RGBA{R: 200, G: 200, B: 200, A: 255}
		edge.Width = vg.Points(0.5)
		p.Add(edge)
	}

	if len(kfs) == 0 {
		return p, nil
	}
	path := make(plotter.XYs, len(kfs))
	for i, kf := range kfs {
		path[i].X, path[i].Y = kf.X, kf.Z
	}
	line, err := plotter.NewLine(path)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(1)

	cams, err := plotter.NewScatter(path)
	if err != nil {
		return nil, err
	}
	cams.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
	cams.GlyphStyle.Radius = vg.Points(2)

	p.Add(line, cams)
	return p, nil
}
