package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/catenary-data/wire.report/internal/wire"
)

var (
	seriesColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	warningColor  = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	criticalColor = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	anomalyColor  = color.RGBA{R: 220, G: 20, B: 60, A: 255}
)

// SavePNGPlots writes one PNG per metric into dir and returns the file
// paths. Threshold lines come from the rules; anomaly transitions are
// overlaid as scatter points.
func SavePNGPlots(dir string, in Input) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var files []string
	for _, spec := range []struct {
		metric wire.Metric
		title  string
		rule   wire.RuleConfig
	}{
		{wire.MetricStagger, "Contact Wire Stagger", in.StaggerRule},
		{wire.MetricDiameter, "Contact Wire Diameter", in.DiameterRule},
	} {
		path := filepath.Join(dir, fmt.Sprintf("%s.png", spec.metric))
		if err := saveMetricPlot(path, in, spec.metric, spec.title, spec.rule); err != nil {
			return files, fmt.Errorf("%s: %w", spec.metric, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func saveMetricPlot(path string, in Input, metric wire.Metric, title string, rule wire.RuleConfig) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - session %s", title, in.Session.ID)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "mm"

	pts := make(plotter.XYs, 0, len(in.Samples))
	minSeq, maxSeq := math.Inf(1), math.Inf(-1)
	for _, m := range in.Samples {
		if !m.Valid {
			continue
		}
		x := float64(m.Seq)
		pts = append(pts, plotter.XY{X: x, Y: metricValue(m, metric)})
		minSeq = math.Min(minSeq, x)
		maxSeq = math.Max(maxSeq, x)
	}
	if len(pts) == 0 {
		return fmt.Errorf("no valid samples to plot")
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = seriesColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(string(metric), line)

	addThreshold := func(name string, dev float64, c color.Color) error {
		if math.IsInf(dev, 0) {
			return nil
		}
		for i, y := range []float64{rule.Reference + dev, rule.Reference - dev} {
			th, err := plotter.NewLine(plotter.XYs{
				{X: minSeq, Y: y},
				{X: maxSeq, Y: y},
			})
			if err != nil {
				return err
			}
			th.Color = c
			th.Width = vg.Points(1)
			th.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			p.Add(th)
			if i == 0 {
				p.Legend.Add(name, th)
			}
		}
		return nil
	}
	if err := addThreshold("warning", rule.Warning.Low, warningColor); err != nil {
		return err
	}
	if err := addThreshold("critical", rule.Critical.Low, criticalColor); err != nil {
		return err
	}

	var anomalyPts plotter.XYs
	for _, a := range in.Anomalies {
		if a.Metric != metric || a.Level == wire.SeverityNormal {
			continue
		}
		anomalyPts = append(anomalyPts, plotter.XY{X: float64(a.Seq), Y: a.Value})
	}
	if len(anomalyPts) > 0 {
		sc, err := plotter.NewScatter(anomalyPts)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = anomalyColor
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add("anomalies", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
