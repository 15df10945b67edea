package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sgrt.report/internal/store"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderCalendar writes an HTML page charting a patient's sessions by
// treatment date: beam-on magnitude figures and peak rotation.
func RenderCalendar(w io.Writer, patientID string, sessions []store.SessionSummary) error {
	dates := make([]string, len(sessions))
	mean := make([]opts.BarData, len(sessions))
	p95 := make([]opts.BarData, len(sessions))
	rotation := make([]opts.LineData, len(sessions))
	for i, s := range sessions {
		dates[i] = s.Date
		mean[i] = opts.BarData{Value: optional(s.MeanMagnitude)}
		p95[i] = opts.BarData{Value: optional(s.P95Magnitude)}
		rotation[i] = opts.LineData{Value: s.MaxAbsRotation}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Treatment calendar " + patientID, Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Beam-on magnitude", Subtitle: fmt.Sprintf("patient=%s sessions=%d", patientID, len(sessions))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "cm"}),
	)
	bar.SetXAxis(dates).
		AddSeries("mean", mean).
		AddSeries("p95", p95)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Peak rotation"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deg"}),
	)
	line.SetXAxis(dates).AddSeries("max |rotation|", rotation)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar, line)
	return page.Render(w)
}

// optional maps a missing figure to a chart gap.
func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
