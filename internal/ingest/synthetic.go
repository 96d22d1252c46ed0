package ingest

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"time"

	"gocv.io/x/gocv"

	"github.com/catenary-data/wire.report/internal/wire"
)

// SyntheticConfig describes a generated wire scene. The wire is drawn as
// a dark near-horizontal segment over a bright sky so the real detector
// can run against it; stagger and diameter follow caller-supplied
// trajectories in millimetres, converted through the same scale a
// calibration profile would use.
type SyntheticConfig struct {
	Width, Height int

	// Frames is the number of frames before end-of-stream.
	Frames int

	// ScalePxPerMM must match the calibration profile used downstream so
	// that measured values reproduce the trajectories.
	ScalePxPerMM float64

	// TrackCentreX is the reference axis in pixels.
	TrackCentreX float64

	// StaggerMM and DiameterMM give the ground truth for frame i
	// (zero-based). Nil means constant 0 mm / 12.5 mm.
	StaggerMM  func(i int) float64
	DiameterMM func(i int) float64

	// WireLengthPx is the drawn segment length; defaults to 60% of the
	// width.
	WireLengthPx int

	// NoiseStdDev adds Gaussian pixel noise when positive.
	NoiseStdDev float64

	// FPS fixes the media timestamps; defaults to 25.
	FPS float64

	// Seed for the noise generator, so frames are reproducible.
	Seed int64
}

// SyntheticSource generates frames programmatically.
type SyntheticSource struct {
	cfg  SyntheticConfig
	rng  *rand.Rand
	next int
}

// NewSyntheticSource fills defaults and returns a generator.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.ScalePxPerMM <= 0 {
		cfg.ScalePxPerMM = 4
	}
	if cfg.TrackCentreX <= 0 {
		cfg.TrackCentreX = float64(cfg.Width) / 2
	}
	if cfg.WireLengthPx <= 0 {
		cfg.WireLengthPx = cfg.Width * 6 / 10
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	if cfg.StaggerMM == nil {
		cfg.StaggerMM = func(int) float64 { return 0 }
	}
	if cfg.DiameterMM == nil {
		cfg.DiameterMM = func(int) float64 { return 12.5 }
	}
	return &SyntheticSource{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Reset rewinds the generator to frame zero.
func (s *SyntheticSource) Reset() { s.next = 0 }

// Profile returns the calibration profile matching the generated scene,
// so measurements reproduce the configured trajectories exactly.
func (s *SyntheticSource) Profile() wire.CalibrationProfile {
	return wire.CalibrationProfile{
		ScalePxPerMM: s.cfg.ScalePxPerMM,
		TrackCentreX: s.cfg.TrackCentreX,
		ImageWidth:   s.cfg.Width,
		ImageHeight:  s.cfg.Height,
		CreatedAt:    time.Now(),
	}
}

// Next draws the frame for the current index or returns
// wire.ErrEndOfStream past the configured count.
func (s *SyntheticSource) Next() (*wire.Frame, error) {
	if s.next >= s.cfg.Frames {
		return nil, wire.ErrEndOfStream
	}
	i := s.next
	s.next++

	img := s.Render(i)
	return &wire.Frame{
		Seq:       uint64(i + 1),
		Timestamp: time.Now(),
		MediaMS:   float64(i) * 1000 / s.cfg.FPS,
		Image:     img,
		Source:    "synthetic",
	}, nil
}

// Render draws frame i without advancing the stream. The caller owns the
// returned Mat.
func (s *SyntheticSource) Render(i int) gocv.Mat {
	cfg := s.cfg
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(215, 0, 0, 0),
		cfg.Height, cfg.Width, gocv.MatTypeCV8U)

	stagger := cfg.StaggerMM(i)
	diameter := cfg.DiameterMM(i)

	cx := cfg.TrackCentreX + stagger*cfg.ScalePxPerMM
	cy := cfg.Height / 2
	half := cfg.WireLengthPx / 2
	thickness := int(math.Round(diameter * cfg.ScalePxPerMM))
	if thickness < 1 {
		thickness = 1
	}

	dark := color.RGBA{R: 25, G: 25, B: 25, A: 0}
	gocv.Line(&img,
		image.Pt(int(cx)-half, cy),
		image.Pt(int(cx)+half, cy),
		dark, thickness)

	if cfg.NoiseStdDev > 0 {
		s.addNoise(&img)
	}
	return img
}

func (s *SyntheticSource) addNoise(img *gocv.Mat) {
	rows := img.Rows()
	cols := img.Cols()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := float64(img.GetUCharAt(y, x)) + s.rng.NormFloat64()*s.cfg.NoiseStdDev
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			img.SetUCharAt(y, x, uint8(v))
		}
	}
}
