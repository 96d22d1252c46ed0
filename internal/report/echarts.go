// Package report renders a recorded session as charts: an interactive
// HTML page via go-echarts and static PNG plots via gonum/plot.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/catenary-data/wire.report/internal/session"
	"github.com/catenary-data/wire.report/internal/wire"
)

// Input bundles everything a report needs. Rules are included so the
// charts can draw the threshold lines the anomalies were judged against.
type Input struct {
	Session   session.Info
	Samples   []wire.MeasurementSample
	Anomalies []wire.AnomalyEvent

	StaggerRule  wire.RuleConfig
	DiameterRule wire.RuleConfig
}

// WriteHTML renders the interactive session report page.
func WriteHTML(w io.Writer, in Input) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Wire Report %s", in.Session.ID)

	page.AddCharts(
		metricLineChart(in, wire.MetricStagger, "Stagger (mm)", in.StaggerRule),
		metricLineChart(in, wire.MetricDiameter, "Diameter (mm)", in.DiameterRule),
	)
	return page.Render(w)
}

func metricValue(m wire.MeasurementSample, metric wire.Metric) float64 {
	if metric == wire.MetricStagger {
		return m.StaggerMM
	}
	return m.DiameterMM
}

func metricLineChart(in Input, metric wire.Metric, title string, rule wire.RuleConfig) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
			Subtitle: fmt.Sprintf("session=%s source=%s samples=%d",
				in.Session.ID, in.Session.Source, in.Session.Samples),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mm", Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	var xs []string
	var ys []opts.LineData
	for _, m := range in.Samples {
		if !m.Valid {
			continue
		}
		xs = append(xs, fmt.Sprintf("%d", m.Seq))
		ys = append(ys, opts.LineData{Value: metricValue(m, metric)})
	}

	line.SetXAxis(xs).AddSeries(string(metric), ys,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithMarkLineNameYAxisItemOpts(thresholdMarkLines(rule)...),
	)

	if sc := anomalyScatter(in, metric); sc != nil {
		line.Overlap(sc)
	}
	return line
}

// thresholdMarkLines draws the band edges as horizontal lines. Bands are
// deviations from the reference, so each edge appears on both sides
// unless that would duplicate a line (a zero-reference metric still gets
// two distinct lines).
func thresholdMarkLines(rule wire.RuleConfig) []opts.MarkLineNameYAxisItem {
	var items []opts.MarkLineNameYAxisItem
	add := func(name string, dev float64) {
		if math.IsInf(dev, 0) {
			return
		}
		items = append(items,
			opts.MarkLineNameYAxisItem{Name: name, YAxis: rule.Reference + dev},
			opts.MarkLineNameYAxisItem{Name: name, YAxis: rule.Reference - dev},
		)
	}
	add("warning", rule.Warning.Low)
	add("critical", rule.Critical.Low)
	return items
}

func anomalyScatter(in Input, metric wire.Metric) *charts.Scatter {
	var data []opts.ScatterData
	for _, a := range in.Anomalies {
		if a.Metric != metric || a.Level == wire.SeverityNormal {
			continue
		}
		data = append(data, opts.ScatterData{
			Value:      []interface{}{fmt.Sprintf("%d", a.Seq), a.Value},
			SymbolSize: 10,
			Name:       a.Level.String(),
		})
	}
	if len(data) == 0 {
		return nil
	}
	sc := charts.NewScatter()
	sc.AddSeries("anomalies", data)
	return sc
}
