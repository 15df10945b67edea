// Package report renders session and collection plots, calendar charts,
// and serves stored results over HTTP.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sgrt.report/internal/security"
	"github.com/banshee-data/sgrt.report/internal/treatment"
)

var (
	colorVertical     = color.RGBA{R: 0x56, G: 0x54, B: 0xf7, A: 255}
	colorLongitudinal = color.RGBA{R: 0xcf, G: 0x16, B: 0x1e, A: 255}
	colorLateral      = color.RGBA{R: 0x41, G: 0xbf, B: 0x71, A: 255}
	colorMagnitude    = color.RGBA{A: 255}
	colorBeamOn       = color.NRGBA{R: 255, A: 60}
)

const (
	rawAlpha    = 77
	rawWidth    = 0.5
	smoothWidth = 2
)

// Plotter writes PNG plots into Dir.
type Plotter struct {
	Dir    string
	Window int // rolling mean width, samples

	Width  vg.Length
	Height vg.Length
}

// NewPlotter returns a Plotter writing 12x6 inch images.
func NewPlotter(dir string, window int) *Plotter {
	return &Plotter{Dir: dir, Window: window, Width: 12 * vg.Inch, Height: 6 * vg.Inch}
}

type trace struct {
	name  string
	color color.RGBA
	value func(treatment.Row) float64
}

var (
	translationTraces = []trace{
		{"Vertical", colorVertical, func(r treatment.Row) float64 { return r.VrtCM }},
		{"Longitudinal", colorLongitudinal, func(r treatment.Row) float64 { return r.LngCM }},
		{"Lateral", colorLateral, func(r treatment.Row) float64 { return r.LatCM }},
		{"Magnitude", colorMagnitude, func(r treatment.Row) float64 { return r.Magnitude }},
	}
	rotationTraces = []trace{
		{"Rotation", colorVertical, func(r treatment.Row) float64 { return r.RtnDeg }},
		{"Roll", colorLongitudinal, func(r treatment.Row) float64 { return r.RollDeg }},
		{"Pitch", colorLateral, func(r treatment.Row) float64 { return r.PitchDeg }},
	}
)

// SessionPlots writes the translation and rotation plots for one session
// and returns their paths. Lost-tracking samples are left out.
func (p *Plotter) SessionPlots(patientID string, s *treatment.Session) ([]string, error) {
	tracked := s.Filter(treatment.Tracked)
	if len(tracked.Rows) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	base := SessionPlotBase(patientID, s)
	beamMax := 0.0
	for _, r := range tracked.Rows {
		if r.BeamOn {
			beamMax = math.Max(beamMax, r.Magnitude)
		}
	}

	var files []string
	for _, panel := range []struct {
		suffix, ylabel string
		traces         []trace
		limit          float64
	}{
		{"translations", "Real-time Position (cm)", translationTraces, 1.5 * beamMax},
		{"rotations", "Real-time Rotation (deg)", rotationTraces, 0},
	} {
		pl, err := p.sessionPanel(tracked, panel.ylabel, panel.traces, panel.limit)
		if err != nil {
			return files, fmt.Errorf("%s %s: %w", base, panel.suffix, err)
		}
		pl.Title.Text = fmt.Sprintf("%s %s", patientID, s.Date.Format("2006-01-02"))
		file := filepath.Join(p.Dir, base+"_"+panel.suffix+".png")
		if err := pl.Save(p.Width, p.Height, file); err != nil {
			return files, fmt.Errorf("save %s plot: %w", panel.suffix, err)
		}
		files = append(files, file)
	}
	return files, nil
}

// SessionPlotBase is the file name stem for a session's plots.
func SessionPlotBase(patientID string, s *treatment.Session) string {
	return security.SanitizeFilename(patientID) + "_" + s.Start.Format("20060102_150405")
}

func (p *Plotter) sessionPanel(s *treatment.Session, ylabel string, traces []trace, limit float64) (*plot.Plot, error) {
	pl := plot.New()
	pl.X.Label.Text = "Time (min)"
	pl.Y.Label.Text = ylabel
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10

	if limit <= 0 {
		for _, tr := range traces {
			for _, r := range s.Rows {
				limit = math.Max(limit, 1.5*math.Abs(tr.value(r)))
			}
		}
		if limit == 0 {
			limit = 1
		}
	}
	pl.Y.Min, pl.Y.Max = -limit, limit

	for _, span := range beamOnSpans(s) {
		poly, err := plotter.NewPolygon(plotter.XYs{
			{X: span[0], Y: -limit}, {X: span[1], Y: -limit},
			{X: span[1], Y: limit}, {X: span[0], Y: limit},
		})
		if err != nil {
			return nil, err
		}
		poly.Color = colorBeamOn
		poly.LineStyle.Width = 0
		pl.Add(poly)
	}

	minutes := s.Column(func(r treatment.Row) float64 { return r.ElapsedMinutes })
	for _, tr := range traces {
		values := s.Column(tr.value)

		raw, err := plotter.NewLine(finiteXYs(minutes, values))
		if err != nil {
			return nil, err
		}
		raw.Color = color.NRGBA{R: tr.color.R, G: tr.color.G, B: tr.color.B, A: rawAlpha}
		raw.Width = vg.Points(rawWidth)
		pl.Add(raw)

		smooth := finiteXYs(minutes, RollingMean(values, p.Window))
		if len(smooth) == 0 {
			continue
		}
		line, err := plotter.NewLine(smooth)
		if err != nil {
			return nil, err
		}
		line.Color = tr.color
		line.Width = vg.Points(smoothWidth)
		pl.Add(line)
		pl.Legend.Add(tr.name, line)
	}
	return pl, nil
}

// beamOnSpans returns [start, end] elapsed minutes of each beam-on run.
func beamOnSpans(s *treatment.Session) [][2]float64 {
	var spans [][2]float64
	open := false
	for _, r := range s.Rows {
		switch {
		case r.BeamOn && !open:
			spans = append(spans, [2]float64{r.ElapsedMinutes, r.ElapsedMinutes})
			open = true
		case r.BeamOn:
			spans[len(spans)-1][1] = r.ElapsedMinutes
		default:
			open = false
		}
	}
	return spans
}

func finiteXYs(xs, ys []float64) plotter.XYs {
	out := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			continue
		}
		out = append(out, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return out
}

// Delivered pools the tracked beam-on rows of sessions.
func Delivered(sessions []*treatment.Session) []treatment.Row {
	var rows []treatment.Row
	for _, s := range sessions {
		rows = append(rows, s.Filter(treatment.Tracked, treatment.BeamOn).Rows...)
	}
	return rows
}

// CDF returns the empirical cumulative distribution of values as sorted
// (value, fraction) points.
func CDF(values []float64) plotter.XYs {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := make(plotter.XYs, len(sorted))
	for i, v := range sorted {
		out[i] = plotter.XY{X: v, Y: float64(i+1) / float64(len(sorted))}
	}
	return out
}

// CollectionPlots writes the beam-on magnitude CDF and the rotation and
// translation distributions pooled over sessions. It writes nothing when
// no session has delivered samples.
func (p *Plotter) CollectionPlots(sessions []*treatment.Session) ([]string, error) {
	rows := Delivered(sessions)
	if len(rows) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	column := func(fn func(treatment.Row) float64) plotter.Values {
		out := make(plotter.Values, len(rows))
		for i, r := range rows {
			out[i] = fn(r)
		}
		return out
	}

	var files []string
	save := func(pl *plot.Plot, name string) error {
		file := filepath.Join(p.Dir, name)
		if err := pl.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		files = append(files, file)
		return nil
	}

	cdf := plot.New()
	cdf.Title.Text = fmt.Sprintf("Beam-on magnitude (%d samples)", len(rows))
	cdf.X.Label.Text = "Magnitude of Deviation (cm)"
	cdf.Y.Label.Text = "CDF"
	line, err := plotter.NewLine(CDF(column(func(r treatment.Row) float64 { return r.Magnitude })))
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(smoothWidth)
	cdf.Add(line)
	if err := save(cdf, "Magnitude.png"); err != nil {
		return files, err
	}

	for _, dist := range []struct {
		file, xlabel string
		traces       []trace
		bins         int
	}{
		{"Rotations.png", "Rotational Deviation (deg)", rotationTraces, 45},
		{"Translations.png", "Translational Deviation (cm)", translationTraces[:3], 30},
	} {
		pl := plot.New()
		pl.X.Label.Text = dist.xlabel
		pl.Y.Label.Text = "Relative Probability"
		for _, tr := range dist.traces {
			h, err := plotter.NewHist(column(tr.value), dist.bins)
			if err != nil {
				return files, err
			}
			h.Normalize(1)
			h.FillColor = color.NRGBA{R: tr.color.R, G: tr.color.G, B: tr.color.B, A: 40}
			h.LineStyle.Color = tr.color
			pl.Add(h)
			pl.Legend.Add(tr.name, h)
		}
		if err := save(pl, dist.file); err != nil {
			return files, err
		}
	}
	return files, nil
}
