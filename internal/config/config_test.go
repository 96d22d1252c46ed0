package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"processing": {"canny_low": 60},
		"rules": {
			"stagger": {"warning_band": {"low": 120, "high": 180}, "critical_band": {"low": 180}, "hysteresis_count": 5}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Processing.CannyLow != 60 {
		t.Errorf("override lost: canny_low = %g", cfg.Processing.CannyLow)
	}
	if cfg.Processing.CannyHigh != 150 {
		t.Errorf("default lost: canny_high = %g", cfg.Processing.CannyHigh)
	}
	if cfg.Rules.Stagger.HysteresisCount != 5 {
		t.Errorf("override lost: hysteresis = %d", cfg.Rules.Stagger.HysteresisCount)
	}
	if cfg.Rules.Diameter.ReferenceMM != 12.5 {
		t.Errorf("untouched section must keep defaults, got %g", cfg.Rules.Diameter.ReferenceMM)
	}
}

func TestMissingBandHighIsUnbounded(t *testing.T) {
	b := BandConfig{Low: 200}
	band := b.Band()
	if !math.IsInf(band.High, 1) {
		t.Errorf("nil high must map to +Inf, got %g", band.High)
	}
	if !band.Contains(1e9) {
		t.Error("unbounded band must contain any large deviation")
	}
}

func TestLoadRejectsWrongExtension(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", `{}`)
	if _, err := Load(path); err == nil {
		t.Error("non-JSON extension accepted")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"even blur kernel", `{"processing": {"blur_kernel_size": 4}}`},
		{"confidence above one", `{"processing": {"min_detection_confidence": 1.2}}`},
		{"zero hysteresis", `{"rules": {"stagger": {"hysteresis_count": 0, "warning_band": {"low": 150, "high": 200}, "critical_band": {"low": 200}}}}`},
		{"inverted band", `{"rules": {"diameter": {"reference_mm": 12.5, "warning_band": {"low": 5, "high": 2}, "critical_band": {"low": 6}, "hysteresis_count": 3}}}`},
		{"zero frame skip", `{"ingest": {"frame_skip": 0}}`},
		{"zero writer queue", `{"bus": {"display_queue": 16, "writer_queue": 0}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "tuning.json", tc.body)
			if _, err := Load(path); err == nil {
				t.Errorf("invalid config accepted: %s", tc.body)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestParamMappings(t *testing.T) {
	cfg := DefaultConfig()

	dp := cfg.DetectorParams()
	if dp.CannyLow != 50 || dp.HoughThreshold != 80 || dp.ProfileStations != 9 {
		t.Errorf("detector mapping wrong: %+v", dp)
	}
	pp := cfg.PreprocessParams()
	if pp.CLAHEClipLimit != 2.0 || pp.BlurKernel != 5 {
		t.Errorf("preprocess mapping wrong: %+v", pp)
	}
	rule := cfg.Rules.Stagger.Rule()
	if rule.Warning.Low != 150 || rule.Warning.High != 200 {
		t.Errorf("stagger warning band wrong: %+v", rule.Warning)
	}
	if !math.IsInf(rule.Critical.High, 1) {
		t.Errorf("stagger critical band must be unbounded, got %g", rule.Critical.High)
	}
}
