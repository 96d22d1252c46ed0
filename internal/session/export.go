package session

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/catenary-data/wire.report/internal/wire"
)

// MetricSummary is descriptive statistics over one metric's valid
// samples.
type MetricSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary is a full session digest, suitable for JSON output.
type Summary struct {
	Session    Info          `json:"session"`
	Stagger    MetricSummary `json:"stagger_mm"`
	Diameter   MetricSummary `json:"diameter_mm"`
	ValidRatio float64       `json:"valid_ratio"`

	// AnomalyCounts is keyed "<metric>/<level>", e.g. "stagger/CRITICAL".
	AnomalyCounts map[string]int `json:"anomaly_counts"`
}

func summarise(values []float64) MetricSummary {
	if len(values) == 0 {
		return MetricSummary{}
	}
	return MetricSummary{
		Count:  len(values),
		Mean:   stat.Mean(values, nil),
		StdDev: stat.StdDev(values, nil),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
	}
}

// Summarise computes a session's digest from its stored records.
func (s *Store) Summarise(sessionID string) (Summary, error) {
	info, err := s.GetSession(sessionID)
	if err != nil {
		return Summary{}, err
	}
	samples, err := s.ListSamples(sessionID)
	if err != nil {
		return Summary{}, err
	}
	anomalies, err := s.ListAnomalies(sessionID)
	if err != nil {
		return Summary{}, err
	}

	var stagger, diameter []float64
	valid := 0
	for _, m := range samples {
		if !m.Valid {
			continue
		}
		valid++
		stagger = append(stagger, m.StaggerMM)
		diameter = append(diameter, m.DiameterMM)
	}

	counts := make(map[string]int)
	for _, a := range anomalies {
		counts[fmt.Sprintf("%s/%s", a.Metric, a.Level)]++
	}

	sum := Summary{
		Session:       info,
		Stagger:       summarise(stagger),
		Diameter:      summarise(diameter),
		AnomalyCounts: counts,
	}
	if len(samples) > 0 {
		sum.ValidRatio = float64(valid) / float64(len(samples))
	}
	return sum, nil
}

// WriteJSON writes the summary as indented JSON.
func (sum Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// ExportCSV writes all of a session's samples to w as a single CSV,
// re-deriving the per-sample severity levels from the stored anomaly
// events so the export matches what the live mirror produced.
func (s *Store) ExportCSV(sessionID string, w io.Writer) error {
	samples, err := s.ListSamples(sessionID)
	if err != nil {
		return err
	}
	anomalies, err := s.ListAnomalies(sessionID)
	if err != nil {
		return err
	}

	cw := newStreamCSV(w)
	if err := cw.writeHeader(); err != nil {
		return err
	}

	levels := map[wire.Metric]wire.Severity{
		wire.MetricStagger:  wire.SeverityNormal,
		wire.MetricDiameter: wire.SeverityNormal,
	}
	ai := 0
	for _, m := range samples {
		// Anomaly events caused by this sample carry its seq.
		for ai < len(anomalies) && anomalies[ai].Seq <= m.Seq {
			levels[anomalies[ai].Metric] = anomalies[ai].Level
			ai++
		}
		err := cw.writeSample(m, levels[wire.MetricStagger], levels[wire.MetricDiameter])
		if err != nil {
			return err
		}
	}
	return cw.flush()
}
