package wire

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
)

// Preparer is the preprocessing stage contract (satisfied by
// *Preprocessor).
type Preparer interface {
	Prepare(*Frame) (*PreparedFrame, error)
}

// WireDetector is the detection stage contract (satisfied by *Detector).
type WireDetector interface {
	Detect(*PreparedFrame) []EdgeCandidate
}

// PipelineStats is a snapshot of the worker's counters.
type PipelineStats struct {
	// Frames pulled from the source.
	Frames uint64
	// Samples published (valid and invalid).
	Samples uint64
	// Invalid samples (no wire detected or confidence too low).
	Invalid uint64
	// Skipped frames (recoverable per-frame errors, e.g. ROI mismatch).
	Skipped uint64
	// Anomalies published.
	Anomalies uint64
}

// Pipeline runs the per-frame measurement chain on a single dedicated
// worker: pull frame, prepare, detect, measure, evaluate rules, publish.
// Stages run sequentially per frame so output order is the frame order by
// construction. The worker checks for cancellation once per frame
// boundary, never mid-frame, so it always exits with the calibrator and
// detector in a consistent state.
type Pipeline struct {
	source FrameSource
	pre    Preparer
	det    WireDetector
	engine *MeasurementEngine
	rules  *RulesEngine
	bus    *Bus
	logger *log.Logger

	logEvery uint64

	frames    atomic.Uint64
	samples   atomic.Uint64
	invalid   atomic.Uint64
	skipped   atomic.Uint64
	anomalies atomic.Uint64
}

// PipelineConfig wires the stages together.
type PipelineConfig struct {
	Source   FrameSource
	Pre      Preparer
	Detector WireDetector
	Engine   *MeasurementEngine
	Rules    *RulesEngine
	Bus      *Bus

	// LogEvery emits a progress line every N frames; 0 disables.
	LogEvery uint64

	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger
}

// NewPipeline assembles a pipeline. All stages are required.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Pre == nil || cfg.Detector == nil ||
		cfg.Engine == nil || cfg.Rules == nil || cfg.Bus == nil {
		return nil, errors.New("pipeline requires source, preprocessor, detector, engine, rules and bus")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		source:   cfg.Source,
		pre:      cfg.Pre,
		det:      cfg.Detector,
		engine:   cfg.Engine,
		rules:    cfg.Rules,
		bus:      cfg.Bus,
		logger:   logger,
		logEvery: cfg.LogEvery,
	}, nil
}

// Stats returns a snapshot of the worker counters. Safe to call from any
// goroutine while the pipeline runs.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Frames:    p.frames.Load(),
		Samples:   p.samples.Load(),
		Invalid:   p.invalid.Load(),
		Skipped:   p.skipped.Load(),
		Anomalies: p.anomalies.Load(),
	}
}

// Run processes frames until the source ends, the context is cancelled,
// or a session-fatal error occurs. The bus always receives exactly one
// terminal event: nil error on end-of-stream or cancellation, the fatal
// error otherwise. Run returns nil on clean termination.
//
// Per-frame failures (ROI mismatch, detection gaps) are counted and
// logged but never abort the run.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("[Pipeline] stop requested after %d frames", p.frames.Load())
			p.bus.Close(nil)
			return nil
		default:
		}

		frame, err := p.source.Next()
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				p.logger.Printf("[Pipeline] end of stream after %d frames", p.frames.Load())
				p.bus.Close(nil)
				return nil
			}
			p.logger.Printf("[Pipeline] frame source failed: %v", err)
			p.bus.Close(err)
			return err
		}
		p.frames.Add(1)

		if err := p.processFrame(frame); err != nil {
			// Only session-fatal errors propagate out of processFrame.
			p.bus.Close(err)
			return err
		}

		if p.logEvery > 0 && p.frames.Load()%p.logEvery == 0 {
			s := p.Stats()
			p.logger.Printf("[Pipeline] frames=%d samples=%d invalid=%d skipped=%d anomalies=%d",
				s.Frames, s.Samples, s.Invalid, s.Skipped, s.Anomalies)
		}
	}
}

func (p *Pipeline) processFrame(frame *Frame) error {
	defer frame.Close()

	prepared, err := p.pre.Prepare(frame)
	if err != nil {
		var ife *InvalidFrameError
		if errors.As(err, &ife) {
			p.skipped.Add(1)
			p.logger.Printf("[Pipeline] skipping frame %d: %v", frame.Seq, err)
			return nil
		}
		return err
	}
	defer prepared.Close()

	candidates := p.det.Detect(prepared)

	sample, err := p.engine.Measure(prepared, candidates)
	if err != nil {
		return err
	}
	if !sample.Valid {
		p.invalid.Add(1)
	}

	events := p.rules.Evaluate(sample)

	// Sample first, then its anomalies: subscribers see the measurement
	// before the transitions it caused.
	p.bus.PublishSample(sample)
	p.samples.Add(1)
	for _, ev := range events {
		p.bus.PublishAnomaly(ev)
		p.anomalies.Add(1)
	}
	return nil
}
