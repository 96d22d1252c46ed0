package wire

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// DetectorParams configures the two-stage wire detector.
type DetectorParams struct {
	// Canny edge thresholds.
	CannyLow  float32
	CannyHigh float32

	// Hough voting parameters.
	HoughRho        float32
	HoughThetaDeg   float64
	HoughThreshold  int
	HoughMinLineLen float32
	HoughMaxLineGap float32

	// AngleToleranceDeg keeps only lines within this many degrees of
	// horizontal; contact wires are roughly horizontal in the camera
	// view.
	AngleToleranceDeg float64

	// MaxCandidates limits how many coarse lines are refined.
	MaxCandidates int

	// MinVotes rejects coarse candidates supported by fewer edge pixels.
	MinVotes int

	// Sub-pixel refinement: profile half width (pixels either side of
	// the line) and the number of stations averaged along the segment.
	ProfileHalfWidth int
	ProfileStations  int
}

// fallbackWidthPx is the assumed wire width when the sub-pixel fit
// cannot produce one.
const fallbackWidthPx = 4.0

// DefaultDetectorParams returns the stock detection parameters.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		CannyLow:          50,
		CannyHigh:         150,
		HoughRho:          1,
		HoughThetaDeg:     1,
		HoughThreshold:    80,
		HoughMinLineLen:   50,
		HoughMaxLineGap:   10,
		AngleToleranceDeg: 30,
		MaxCandidates:     5,
		MinVotes:          40,
		ProfileHalfWidth:  20,
		ProfileStations:   9,
	}
}

// Validate checks parameter bounds.
func (p DetectorParams) Validate() error {
	if p.CannyLow <= 0 || p.CannyHigh <= p.CannyLow {
		return fmt.Errorf("canny thresholds must satisfy 0 < low < high, got %g/%g", p.CannyLow, p.CannyHigh)
	}
	if p.HoughThreshold < 1 {
		return fmt.Errorf("hough threshold must be at least 1, got %d", p.HoughThreshold)
	}
	if p.AngleToleranceDeg <= 0 || p.AngleToleranceDeg > 90 {
		return fmt.Errorf("angle tolerance must be in (0, 90], got %g", p.AngleToleranceDeg)
	}
	if p.MaxCandidates < 1 {
		return fmt.Errorf("max candidates must be at least 1, got %d", p.MaxCandidates)
	}
	if p.ProfileHalfWidth < 2 || p.ProfileStations < 1 {
		return fmt.Errorf("profile geometry too small: half width %d, stations %d", p.ProfileHalfWidth, p.ProfileStations)
	}
	return nil
}

// Detector locates candidate wire lines in a prepared frame and refines
// them to sub-pixel precision. It keeps the angle of the previously
// accepted candidate so that near-parallel false edges do not cause the
// selection to jitter between frames. Not safe for concurrent use; the
// pipeline runs it from a single worker.
type Detector struct {
	params DetectorParams

	hasPrev   bool
	prevAngle float64
}

// NewDetector validates params and returns a detector.
func NewDetector(params DetectorParams) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: params}, nil
}

// Reset clears the temporal continuity state, e.g. when the source
// changes.
func (d *Detector) Reset() {
	d.hasPrev = false
	d.prevAngle = 0
}

// Detect returns refined edge candidates ordered so that the first
// element is the accepted wire. An empty slice means no wire is visible
// on this frame; that is a normal outcome, not an error.
//
// Ordering policy: when a previous frame produced an accepted candidate,
// candidates are ranked by angular distance to that candidate's angle
// (temporal continuity); otherwise by vote count.
func (d *Detector) Detect(pf *PreparedFrame) []EdgeCandidate {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(pf.Gray, &edges, d.params.CannyLow, d.params.CannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines,
		d.params.HoughRho,
		float32(d.params.HoughThetaDeg*math.Pi/180),
		d.params.HoughThreshold,
		d.params.HoughMinLineLen,
		d.params.HoughMaxLineGap,
	)

	coarse := d.collectCoarse(edges, lines)
	if len(coarse) == 0 {
		return nil
	}

	// Rank by votes and refine only the strongest few.
	sort.Slice(coarse, func(i, j int) bool { return coarse[i].Votes > coarse[j].Votes })
	if len(coarse) > d.params.MaxCandidates {
		coarse = coarse[:d.params.MaxCandidates]
	}

	candidates := make([]EdgeCandidate, 0, len(coarse))
	for _, c := range coarse {
		candidates = append(candidates, d.refine(pf.Gray, c))
	}

	if d.hasPrev {
		prev := d.prevAngle
		sort.SliceStable(candidates, func(i, j int) bool {
			di := math.Abs(candidates[i].AngleDeg - prev)
			dj := math.Abs(candidates[j].AngleDeg - prev)
			if di != dj {
				return di < dj
			}
			return candidates[i].Votes > candidates[j].Votes
		})
	}

	d.hasPrev = true
	d.prevAngle = candidates[0].AngleDeg
	return candidates
}

// collectCoarse converts the Hough output into vote-scored segments,
// keeping only near-horizontal lines with enough edge support.
func (d *Detector) collectCoarse(edges, lines gocv.Mat) []EdgeCandidate {
	var out []EdgeCandidate
	for i := 0; i < lines.Rows(); i++ {
		seg := lines.GetVeciAt(i, 0)
		x1, y1 := float64(seg[0]), float64(seg[1])
		x2, y2 := float64(seg[2]), float64(seg[3])

		angle := foldAngle(math.Atan2(y2-y1, x2-x1) * 180 / math.Pi)
		if angle > d.params.AngleToleranceDeg {
			continue
		}

		votes := countEdgeVotes(edges, x1, y1, x2, y2)
		if votes < d.params.MinVotes {
			continue
		}
		length := math.Hypot(x2-x1, y2-y1)
		out = append(out, EdgeCandidate{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			AngleDeg:  angle,
			Votes:     votes,
			VoteRatio: clamp01(float64(votes) / length),
		})
	}
	return out
}

// refine runs the sub-pixel stage on one coarse candidate: the mean
// perpendicular intensity profile is fitted with a Gaussian whose centre
// shifts the wire centre along the segment normal and whose FWHM is the
// raw-pixel width estimate.
func (d *Detector) refine(gray gocv.Mat, c EdgeCandidate) EdgeCandidate {
	cx := (c.X1 + c.X2) / 2
	cy := (c.Y1 + c.Y2) / 2

	profile := perpendicularProfile(gray, c.X1, c.Y1, c.X2, c.Y2,
		d.params.ProfileHalfWidth, d.params.ProfileStations)
	fit := fitGaussian(profile)

	c.CentreX = cx
	c.CentreY = cy
	c.FitResidual = fit.Residual
	// Fallback width for degenerate fits; the low confidence they carry
	// usually invalidates the sample anyway.
	c.WidthPx = fallbackWidthPx
	if fit.OK {
		length := math.Hypot(c.X2-c.X1, c.Y2-c.Y1)
		nx := -(c.Y2 - c.Y1) / length
		ny := (c.X2 - c.X1) / length
		c.CentreX = cx + nx*fit.Centre
		c.CentreY = cy + ny*fit.Centre
		c.WidthPx = fit.FWHM()
	}

	// Confidence blends coarse vote support with fit quality. The
	// weighting is a working default, not a calibrated constant.
	c.Confidence = clamp01(0.5*c.VoteRatio + 0.5*(1-fit.Residual))
	return c
}

// countEdgeVotes counts edge pixels along the segment in the Canny
// output, sampling at one-pixel steps.
func countEdgeVotes(edges gocv.Mat, x1, y1, x2, y2 float64) int {
	length := math.Hypot(x2-x1, y2-y1)
	steps := int(length)
	if steps < 1 {
		return 0
	}
	cols := edges.Cols()
	rows := edges.Rows()
	votes := 0
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		x := int(math.Round(x1 + (x2-x1)*f))
		y := int(math.Round(y1 + (y2-y1)*f))
		if x < 0 || y < 0 || x >= cols || y >= rows {
			continue
		}
		if edges.GetUCharAt(y, x) > 0 {
			votes++
		}
	}
	return votes
}

// foldAngle maps an angle in degrees to its distance from horizontal in
// [0, 90].
func foldAngle(deg float64) float64 {
	a := math.Abs(deg)
	for a > 180 {
		a -= 180
	}
	if a > 90 {
		a = 180 - a
	}
	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
