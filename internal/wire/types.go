package wire

import (
	"fmt"
	"math"
	"time"
)

// Metric identifies one of the measured wire quantities.
type Metric string

const (
	MetricStagger  Metric = "stagger"
	MetricDiameter Metric = "diameter"
)

// Severity is the anomaly level of a metric's state machine.
type Severity uint8

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the severity name used in logs and persisted records.
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "NORMAL"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("SEVERITY(%d)", uint8(s))
	}
}

// EdgeCandidate is a detected wire line in ROI-local pixel space, refined
// to sub-pixel precision. Candidates are consumed immediately by the
// measurement engine and never persisted.
type EdgeCandidate struct {
	// Segment endpoints (ROI-local pixels).
	X1, Y1, X2, Y2 float64

	// AngleDeg is the segment angle folded into [0, 90] degrees
	// relative to horizontal.
	AngleDeg float64

	// Refined wire centre (ROI-local pixels, sub-pixel).
	CentreX, CentreY float64

	// WidthPx is the FWHM of the fitted perpendicular intensity peak,
	// the raw-pixel wire width estimate.
	WidthPx float64

	// Votes is the number of edge pixels supporting the segment.
	Votes int

	// VoteRatio is Votes normalised by the segment length in pixels.
	VoteRatio float64

	// FitResidual is the normalised RMS residual of the Gaussian profile
	// fit; lower is better. 1.0 means the fit failed.
	FitResidual float64

	// Confidence in [0, 1], blended from vote strength and fit residual.
	Confidence float64
}

// Length returns the segment length in pixels.
func (c EdgeCandidate) Length() float64 {
	dx := c.X2 - c.X1
	dy := c.Y2 - c.Y1
	return math.Hypot(dx, dy)
}

// MeasurementSample is one per-frame measurement result. Immutable after
// creation. Exactly one sample is produced per input frame; a frame where
// detection failed yields Valid=false with no stale values carried over.
type MeasurementSample struct {
	// Seq is the frame sequence number; strictly increasing per session.
	Seq uint64

	// Timestamp is the wall-clock capture time of the frame.
	Timestamp time.Time

	// MediaMS is the source media timestamp in milliseconds, when the
	// frame source knows it (video files); zero otherwise.
	MediaMS float64

	// StaggerMM is the signed lateral deviation of the wire centre from
	// the track centreline. Positive means right of centre. Only
	// meaningful when Valid.
	StaggerMM float64

	// DiameterMM is the calibrated wire width. Only meaningful when Valid.
	DiameterMM float64

	// Confidence of the accepted detection in [0, 1].
	Confidence float64

	// Valid reports whether a wire was detected with sufficient
	// confidence on this frame.
	Valid bool

	// CentreX, CentreY locate the accepted wire centre in full-frame
	// pixel coordinates (for overlay rendering). Only meaningful when
	// Valid.
	CentreX, CentreY float64
}

// AnomalyEvent is emitted by the rules engine on a state transition.
// Repeated samples within the same state emit no events.
type AnomalyEvent struct {
	Metric    Metric
	Level     Severity
	PrevLevel Severity

	// Seq is the sequence number of the sample that caused the
	// transition.
	Seq uint64

	Timestamp time.Time

	// Value is the offending (or recovering) measured value in mm.
	Value float64

	// Threshold is the band edge that was crossed, expressed as an
	// absolute deviation from the metric's reference value.
	Threshold float64

	Message string
}
