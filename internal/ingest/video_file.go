package ingest

import (
	"fmt"
	"log"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/catenary-data/wire.report/internal/timeutil"
	"github.com/catenary-data/wire.report/internal/wire"
)

// VideoFileConfig configures a video file source.
type VideoFileConfig struct {
	// Path to the video file (MP4, AVI, MKV, ...).
	Path string

	// FrameSkip processes every Nth frame; 1 (or 0) processes all.
	FrameSkip int

	// TargetFPS throttles delivery to simulate real time; 0 delivers as
	// fast as the file can be decoded.
	TargetFPS float64

	// StartFrame is the zero-based index of the first frame to yield.
	StartFrame int

	// EndFrame is the last frame index to yield; negative means until
	// the end of the file.
	EndFrame int

	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger

	// Clock is optional; if nil, uses the real clock. Tests inject a
	// mock to verify pacing without sleeping.
	Clock timeutil.Clock
}

// VideoFileSource reads frames from a local video file.
type VideoFileSource struct {
	cfg    VideoFileConfig
	logger *log.Logger
	clock  timeutil.Clock

	cap       *gocv.VideoCapture
	nextIndex int
	seq       uint64
	nativeFPS float64
	total     int
	lastYield time.Time
}

// NewVideoFileSource validates the config; Open actually opens the file.
func NewVideoFileSource(cfg VideoFileConfig) (*VideoFileSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("video path is required")
	}
	if cfg.FrameSkip < 0 {
		return nil, fmt.Errorf("frame skip must be non-negative, got %d", cfg.FrameSkip)
	}
	if cfg.FrameSkip == 0 {
		cfg.FrameSkip = 1
	}
	if cfg.EndFrame == 0 {
		cfg.EndFrame = -1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &VideoFileSource{cfg: cfg, logger: logger, clock: clock}, nil
}

// Open opens the capture and seeks to the configured start frame.
func (v *VideoFileSource) Open() error {
	if _, err := os.Stat(v.cfg.Path); err != nil {
		return fmt.Errorf("video file: %w", err)
	}
	cap, err := gocv.OpenVideoCapture(v.cfg.Path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", v.cfg.Path, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("could not open video: %s", v.cfg.Path)
	}
	v.cap = cap
	v.nativeFPS = cap.Get(gocv.VideoCaptureFPS)
	if v.nativeFPS <= 0 {
		v.nativeFPS = 25
	}
	v.total = int(cap.Get(gocv.VideoCaptureFrameCount))
	if v.cfg.StartFrame > 0 {
		cap.Set(gocv.VideoCapturePosFrames, float64(v.cfg.StartFrame))
		v.nextIndex = v.cfg.StartFrame
	}
	v.logger.Printf("[Ingest] opened %s: %.1f fps, %d frames", v.cfg.Path, v.nativeFPS, v.total)
	return nil
}

// Close releases the capture.
func (v *VideoFileSource) Close() error {
	if v.cap != nil {
		err := v.cap.Close()
		v.cap = nil
		return err
	}
	return nil
}

// FPS returns the native frame rate of the file.
func (v *VideoFileSource) FPS() float64 { return v.nativeFPS }

// FrameCount returns the total frame count reported by the container.
func (v *VideoFileSource) FrameCount() int { return v.total }

// Next returns the next frame, honouring frame skip, the end-frame window
// and target-FPS pacing. Returns wire.ErrEndOfStream when the file is
// exhausted.
func (v *VideoFileSource) Next() (*wire.Frame, error) {
	if v.cap == nil {
		return nil, fmt.Errorf("video source not opened")
	}

	// Discard skipped frames without decoding them.
	for i := 0; i < v.cfg.FrameSkip-1; i++ {
		v.cap.Grab(1)
		v.nextIndex++
	}

	if v.cfg.EndFrame >= 0 && v.nextIndex > v.cfg.EndFrame {
		return nil, wire.ErrEndOfStream
	}

	img := gocv.NewMat()
	if ok := v.cap.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, wire.ErrEndOfStream
	}
	mediaMS := v.cap.Get(gocv.VideoCapturePosMsec)
	v.nextIndex++
	v.seq++

	if v.cfg.TargetFPS > 0 {
		interval := time.Duration(float64(time.Second) / v.cfg.TargetFPS)
		if !v.lastYield.IsZero() {
			if wait := interval - v.clock.Since(v.lastYield); wait > 0 {
				v.clock.Sleep(wait)
			}
		}
		v.lastYield = v.clock.Now()
	}

	return &wire.Frame{
		Seq:       v.seq,
		Timestamp: time.Now(),
		MediaMS:   mediaMS,
		Image:     img,
		Source:    v.cfg.Path,
	}, nil
}
