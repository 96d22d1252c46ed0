package wire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// CalibrationProfile is the pixel-to-millimetre mapping produced by the
// calibration wizard from two reference points of known real-world
// separation. Immutable once loaded; recalibration atomically swaps the
// active profile.
type CalibrationProfile struct {
	// ScalePxPerMM converts millimetres to pixels; must be positive.
	ScalePxPerMM float64 `json:"scale_px_per_mm"`

	// ReferenceP1, ReferenceP2 are the user-picked pixel coordinates the
	// scale was derived from, in click order.
	ReferenceP1 [2]float64 `json:"reference_p1"`
	ReferenceP2 [2]float64 `json:"reference_p2"`

	// TrackCentreX is the reference axis for stagger, in full-frame
	// pixels.
	TrackCentreX float64 `json:"track_centre_x_px"`

	// ImageWidth, ImageHeight record the frame geometry the profile was
	// created against.
	ImageWidth  int `json:"image_width_px"`
	ImageHeight int `json:"image_height_px"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the profile invariants.
func (p *CalibrationProfile) Validate() error {
	if p.ScalePxPerMM <= 0 {
		return fmt.Errorf("scale_px_per_mm must be positive, got %g", p.ScalePxPerMM)
	}
	if p.ImageWidth < 0 || p.ImageHeight < 0 {
		return fmt.Errorf("image dimensions must be non-negative, got %dx%d", p.ImageWidth, p.ImageHeight)
	}
	return nil
}

// Calibrator holds the active calibration profile and converts pixel
// geometry to metric measurements. The profile is a single owned value
// swapped atomically on recalibration; readers never observe a partial
// update.
type Calibrator struct {
	profile atomic.Pointer[CalibrationProfile]
}

// NewCalibrator returns a Calibrator with no profile loaded. All metric
// conversions fail with ErrNoCalibration until Load succeeds.
func NewCalibrator() *Calibrator {
	return &Calibrator{}
}

// Load validates and atomically installs a new profile.
func (c *Calibrator) Load(p CalibrationProfile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid calibration profile: %w", err)
	}
	c.profile.Store(&p)
	return nil
}

// Profile returns the active profile, or false when none is loaded.
func (c *Calibrator) Profile() (*CalibrationProfile, bool) {
	p := c.profile.Load()
	return p, p != nil
}

// ToMillimetres converts a pixel distance to millimetres:
// mm = px / scale_px_per_mm, exactly.
func (c *Calibrator) ToMillimetres(px float64) (float64, error) {
	p := c.profile.Load()
	if p == nil {
		return 0, ErrNoCalibration
	}
	return px / p.ScalePxPerMM, nil
}

// StaggerFromCentre returns the signed stagger in millimetres for a wire
// centre at the given full-frame x coordinate. Positive means right of
// the track centreline.
func (c *Calibrator) StaggerFromCentre(centreX float64) (float64, error) {
	p := c.profile.Load()
	if p == nil {
		return 0, ErrNoCalibration
	}
	return (centreX - p.TrackCentreX) / p.ScalePxPerMM, nil
}

// LoadProfileFile reads a calibration profile from the JSON format the
// calibration wizard persists.
func LoadProfileFile(path string) (CalibrationProfile, error) {
	var p CalibrationProfile
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return p, fmt.Errorf("read calibration file: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse calibration file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return p, nil
}

// SaveProfileFile writes a profile as JSON, for wizard interoperability.
func SaveProfileFile(path string, p CalibrationProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
