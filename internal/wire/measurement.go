package wire

import "fmt"

// MeasurementParams configures sample derivation.
type MeasurementParams struct {
	// MinConfidence is the detection confidence below which a frame
	// yields an invalid sample instead of a measurement.
	MinConfidence float64
}

// DefaultMeasurementParams returns the stock measurement parameters.
func DefaultMeasurementParams() MeasurementParams {
	return MeasurementParams{MinConfidence: 0.5}
}

// MeasurementEngine converts detector candidates into metric
// MeasurementSamples using the active calibration. A frame with no
// usable candidate produces a sample with Valid=false; stale values are
// never carried forward, so gaps in detection stay visible downstream.
type MeasurementEngine struct {
	cal    *Calibrator
	params MeasurementParams
}

// NewMeasurementEngine returns an engine bound to the given calibrator.
func NewMeasurementEngine(cal *Calibrator, params MeasurementParams) (*MeasurementEngine, error) {
	if cal == nil {
		return nil, fmt.Errorf("measurement engine requires a calibrator")
	}
	if params.MinConfidence < 0 || params.MinConfidence > 1 {
		return nil, fmt.Errorf("min confidence must be in [0, 1], got %g", params.MinConfidence)
	}
	return &MeasurementEngine{cal: cal, params: params}, nil
}

// Measure derives one sample from the detector output for a prepared
// frame. candidates[0] is the accepted candidate (the detector orders
// them). Returns ErrNoCalibration when no profile is loaded; that is
// fatal for the session and must halt the pipeline.
func (e *MeasurementEngine) Measure(pf *PreparedFrame, candidates []EdgeCandidate) (MeasurementSample, error) {
	sample := MeasurementSample{
		Seq:       pf.Seq,
		Timestamp: pf.Timestamp,
		MediaMS:   pf.MediaMS,
	}

	// Calibration is checked before looking at candidates: a session
	// without a scale cannot produce any measurement at all.
	if _, ok := e.cal.Profile(); !ok {
		return sample, ErrNoCalibration
	}

	if len(candidates) == 0 {
		return sample, nil
	}
	accepted := candidates[0]
	sample.Confidence = accepted.Confidence
	if accepted.Confidence < e.params.MinConfidence {
		return sample, nil
	}

	centreX := accepted.CentreX + float64(pf.OffsetX)
	centreY := accepted.CentreY + float64(pf.OffsetY)

	stagger, err := e.cal.StaggerFromCentre(centreX)
	if err != nil {
		return sample, err
	}
	diameter, err := e.cal.ToMillimetres(accepted.WidthPx)
	if err != nil {
		return sample, err
	}

	sample.StaggerMM = stagger
	sample.DiameterMM = diameter
	sample.CentreX = centreX
	sample.CentreY = centreY
	sample.Valid = true
	return sample, nil
}
