package wire

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestCalibratorRequiresProfile(t *testing.T) {
	c := NewCalibrator()

	if _, ok := c.Profile(); ok {
		t.Error("fresh calibrator reports a profile")
	}
	if _, err := c.ToMillimetres(10); !errors.Is(err, ErrNoCalibration) {
		t.Errorf("expected ErrNoCalibration, got %v", err)
	}
	if _, err := c.StaggerFromCentre(320); !errors.Is(err, ErrNoCalibration) {
		t.Errorf("expected ErrNoCalibration, got %v", err)
	}
}

func TestCalibratorConversionIsExactDivision(t *testing.T) {
	c := NewCalibrator()
	err := c.Load(CalibrationProfile{ScalePxPerMM: 4, TrackCentreX: 320})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mm, err := c.ToMillimetres(50)
	if err != nil {
		t.Fatalf("ToMillimetres: %v", err)
	}
	if mm != 12.5 {
		t.Errorf("50 px / 4 px/mm = 12.5 mm, got %g", mm)
	}
}

func TestStaggerSign(t *testing.T) {
	c := NewCalibrator()
	if err := c.Load(CalibrationProfile{ScalePxPerMM: 2, TrackCentreX: 320}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	right, _ := c.StaggerFromCentre(420)
	if right != 50 {
		t.Errorf("100 px right of centre = +50 mm, got %g", right)
	}
	left, _ := c.StaggerFromCentre(220)
	if left != -50 {
		t.Errorf("100 px left of centre = -50 mm, got %g", left)
	}
	centre, _ := c.StaggerFromCentre(320)
	if centre != 0 {
		t.Errorf("on-centre stagger must be 0, got %g", centre)
	}
}

func TestCalibratorRejectsBadProfile(t *testing.T) {
	c := NewCalibrator()
	if err := c.Load(CalibrationProfile{ScalePxPerMM: 0}); err == nil {
		t.Error("zero scale accepted")
	}
	if err := c.Load(CalibrationProfile{ScalePxPerMM: -2}); err == nil {
		t.Error("negative scale accepted")
	}
	if _, ok := c.Profile(); ok {
		t.Error("rejected profile must not be installed")
	}
}

func TestRecalibrationSwapsProfile(t *testing.T) {
	c := NewCalibrator()
	if err := c.Load(CalibrationProfile{ScalePxPerMM: 2, TrackCentreX: 100}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Load(CalibrationProfile{ScalePxPerMM: 5, TrackCentreX: 200}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, ok := c.Profile()
	if !ok || p.ScalePxPerMM != 5 || p.TrackCentreX != 200 {
		t.Errorf("expected the new profile to be active, got %+v", p)
	}
	mm, _ := c.ToMillimetres(10)
	if mm != 2 {
		t.Errorf("conversions must use the new scale, got %g", mm)
	}
}

func TestProfileFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	want := CalibrationProfile{
		ScalePxPerMM: 3.5,
		ReferenceP1:  [2]float64{100, 200},
		ReferenceP2:  [2]float64{450, 200},
		TrackCentreX: 275,
		ImageWidth:   640,
		ImageHeight:  480,
		CreatedAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	if err := SaveProfileFile(path, want); err != nil {
		t.Fatalf("SaveProfileFile: %v", err)
	}
	got, err := LoadProfileFile(path)
	if err != nil {
		t.Fatalf("LoadProfileFile: %v", err)
	}
	if got.ScalePxPerMM != want.ScalePxPerMM || got.TrackCentreX != want.TrackCentreX ||
		got.ReferenceP1 != want.ReferenceP1 || got.ReferenceP2 != want.ReferenceP2 ||
		got.ImageWidth != want.ImageWidth || got.ImageHeight != want.ImageHeight ||
		!got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadProfileFileRejectsInvalid(t *testing.T) {
	if _, err := LoadProfileFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file accepted")
	}
}
