// Package config loads and validates the application configuration from
// a JSON file. All bounds are checked at load time so the pipeline never
// has to re-validate at use time.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/catenary-data/wire.report/internal/wire"
)

// maxConfigSize guards against accidentally pointing the loader at a
// huge file.
const maxConfigSize = 1 * 1024 * 1024

// BandConfig is a severity band in the config file. A missing "high"
// means unbounded (+Inf).
type BandConfig struct {
	Low  float64  `json:"low"`
	High *float64 `json:"high,omitempty"`
}

// Band converts to the engine representation.
func (b BandConfig) Band() wire.Band {
	high := math.Inf(1)
	if b.High != nil {
		high = *b.High
	}
	return wire.Band{Low: b.Low, High: high}
}

// MetricRuleConfig configures one metric's thresholds.
type MetricRuleConfig struct {
	// ReferenceMM is the nominal value deviations are measured from.
	ReferenceMM float64 `json:"reference_mm"`

	WarningBand  BandConfig `json:"warning_band"`
	CriticalBand BandConfig `json:"critical_band"`

	// HysteresisCount is the consecutive safe samples required to step
	// the state down one level.
	HysteresisCount int `json:"hysteresis_count"`
}

// Rule converts to the engine representation.
func (m MetricRuleConfig) Rule() wire.RuleConfig {
	return wire.RuleConfig{
		Reference:  m.ReferenceMM,
		Warning:    m.WarningBand.Band(),
		Critical:   m.CriticalBand.Band(),
		Hysteresis: m.HysteresisCount,
	}
}

// IngestConfig controls the frame source.
type IngestConfig struct {
	FrameSkip  int     `json:"frame_skip"`
	TargetFPS  float64 `json:"target_fps"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
}

// ProcessingConfig controls preprocessing, detection and measurement.
type ProcessingConfig struct {
	ROI *wire.ROI `json:"roi,omitempty"`

	CLAHEClipLimit float64 `json:"clahe_clip_limit"`
	CLAHETileGrid  int     `json:"clahe_tile_grid"`
	BlurKernelSize int     `json:"blur_kernel_size"`

	CannyLow  float64 `json:"canny_low"`
	CannyHigh float64 `json:"canny_high"`

	HoughRho           float64 `json:"hough_rho"`
	HoughThetaDeg      float64 `json:"hough_theta_deg"`
	HoughThreshold     int     `json:"hough_threshold"`
	HoughMinLineLength float64 `json:"hough_min_line_length"`
	HoughMaxLineGap    float64 `json:"hough_max_line_gap"`

	AngleToleranceDeg float64 `json:"angle_tolerance_deg"`
	MaxCandidates     int     `json:"max_candidates"`
	MinVotes          int     `json:"min_votes"`
	ProfileHalfWidth  int     `json:"profile_half_width"`
	ProfileStations   int     `json:"profile_stations"`

	MinConfidence float64 `json:"min_detection_confidence"`
}

// SessionConfig controls persistence.
type SessionConfig struct {
	Dir        string `json:"dir"`
	CSVEnabled bool   `json:"csv_enabled"`
	CSVMaxRows int    `json:"csv_max_rows"`
}

// BusConfig sizes the subscriber queues.
type BusConfig struct {
	// DisplayQueue is the bounded capacity for lag-tolerant consumers.
	DisplayQueue int `json:"display_queue"`
	// WriterQueue is the capacity for the persistence writer, which
	// blocks the producer rather than drop data.
	WriterQueue int `json:"writer_queue"`
}

// RulesConfig holds both metric rules.
type RulesConfig struct {
	Stagger  MetricRuleConfig `json:"stagger"`
	Diameter MetricRuleConfig `json:"diameter"`
}

// Config is the root application configuration.
type Config struct {
	Ingest     IngestConfig     `json:"ingest"`
	Processing ProcessingConfig `json:"processing"`
	Rules      RulesConfig      `json:"rules"`
	Session    SessionConfig    `json:"session"`
	Bus        BusConfig        `json:"bus"`
}

func ptr(v float64) *float64 { return &v }

// DefaultConfig returns the stock configuration. The rule defaults match
// common contact-wire tolerances: stagger warning at 150 mm / critical at
// 200 mm from centre, diameter nominal 12.5 mm with warning at 2.5 mm and
// critical at 4.5 mm deviation.
func DefaultConfig() Config {
	return Config{
		Ingest: IngestConfig{
			FrameSkip: 1,
			EndFrame:  -1,
		},
		Processing: ProcessingConfig{
			CLAHEClipLimit:     2.0,
			CLAHETileGrid:      8,
			BlurKernelSize:     5,
			CannyLow:           50,
			CannyHigh:          150,
			HoughRho:           1,
			HoughThetaDeg:      1,
			HoughThreshold:     80,
			HoughMinLineLength: 50,
			HoughMaxLineGap:    10,
			AngleToleranceDeg:  30,
			MaxCandidates:      5,
			MinVotes:           40,
			ProfileHalfWidth:   20,
			ProfileStations:    9,
			MinConfidence:      0.5,
		},
		Rules: RulesConfig{
			Stagger: MetricRuleConfig{
				ReferenceMM:     0,
				WarningBand:     BandConfig{Low: 150, High: ptr(200.0)},
				CriticalBand:    BandConfig{Low: 200},
				HysteresisCount: 3,
			},
			Diameter: MetricRuleConfig{
				ReferenceMM:     12.5,
				WarningBand:     BandConfig{Low: 2.5, High: ptr(4.5)},
				CriticalBand:    BandConfig{Low: 4.5},
				HysteresisCount: 3,
			},
		},
		Session: SessionConfig{
			Dir:        "data/sessions",
			CSVEnabled: true,
			CSVMaxRows: 100_000,
		},
		Bus: BusConfig{
			DisplayQueue: 256,
			WriterQueue:  4096,
		},
	}
}

// Load reads a JSON config file over the defaults, so partial files are
// safe. Validation runs on the merged result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every bound the pipeline relies on.
func (c Config) Validate() error {
	if c.Ingest.FrameSkip < 1 {
		return fmt.Errorf("ingest.frame_skip must be at least 1, got %d", c.Ingest.FrameSkip)
	}
	if c.Ingest.TargetFPS < 0 {
		return fmt.Errorf("ingest.target_fps must be non-negative, got %g", c.Ingest.TargetFPS)
	}
	if c.Processing.BlurKernelSize < 1 || c.Processing.BlurKernelSize%2 == 0 {
		return fmt.Errorf("processing.blur_kernel_size must be a positive odd number, got %d", c.Processing.BlurKernelSize)
	}
	if c.Processing.MinConfidence < 0 || c.Processing.MinConfidence > 1 {
		return fmt.Errorf("processing.min_detection_confidence must be in [0, 1], got %g", c.Processing.MinConfidence)
	}
	if c.Processing.ROI != nil && (c.Processing.ROI.W <= 0 || c.Processing.ROI.H <= 0 ||
		c.Processing.ROI.X < 0 || c.Processing.ROI.Y < 0) {
		return fmt.Errorf("processing.roi must have non-negative origin and positive size, got %+v", *c.Processing.ROI)
	}
	if err := c.DetectorParams().Validate(); err != nil {
		return fmt.Errorf("processing: %w", err)
	}
	if err := c.Rules.Stagger.Rule().Validate(); err != nil {
		return fmt.Errorf("rules.stagger: %w", err)
	}
	if err := c.Rules.Diameter.Rule().Validate(); err != nil {
		return fmt.Errorf("rules.diameter: %w", err)
	}
	if c.Session.CSVMaxRows < 1 {
		return fmt.Errorf("session.csv_max_rows must be positive, got %d", c.Session.CSVMaxRows)
	}
	if c.Bus.DisplayQueue < 1 || c.Bus.WriterQueue < 1 {
		return fmt.Errorf("bus queues must be positive, got display=%d writer=%d", c.Bus.DisplayQueue, c.Bus.WriterQueue)
	}
	return nil
}

// PreprocessParams maps to the engine's preprocessing parameters.
func (c Config) PreprocessParams() wire.PreprocessParams {
	return wire.PreprocessParams{
		ROI:            c.Processing.ROI,
		CLAHEClipLimit: c.Processing.CLAHEClipLimit,
		CLAHETileGrid:  c.Processing.CLAHETileGrid,
		BlurKernel:     c.Processing.BlurKernelSize,
	}
}

// DetectorParams maps to the engine's detector parameters.
func (c Config) DetectorParams() wire.DetectorParams {
	return wire.DetectorParams{
		CannyLow:          float32(c.Processing.CannyLow),
		CannyHigh:         float32(c.Processing.CannyHigh),
		HoughRho:          float32(c.Processing.HoughRho),
		HoughThetaDeg:     c.Processing.HoughThetaDeg,
		HoughThreshold:    c.Processing.HoughThreshold,
		HoughMinLineLen:   float32(c.Processing.HoughMinLineLength),
		HoughMaxLineGap:   float32(c.Processing.HoughMaxLineGap),
		AngleToleranceDeg: c.Processing.AngleToleranceDeg,
		MaxCandidates:     c.Processing.MaxCandidates,
		MinVotes:          c.Processing.MinVotes,
		ProfileHalfWidth:  c.Processing.ProfileHalfWidth,
		ProfileStations:   c.Processing.ProfileStations,
	}
}

// MeasurementParams maps to the engine's measurement parameters.
func (c Config) MeasurementParams() wire.MeasurementParams {
	return wire.MeasurementParams{MinConfidence: c.Processing.MinConfidence}
}
