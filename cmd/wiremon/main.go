// wiremon runs the contact wire measurement pipeline over a video file,
// a live camera or a synthetic scene, persisting every session to
// SQLite (plus an optional CSV mirror) and optionally rendering charts
// when the run ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/catenary-data/wire.report/internal/config"
	"github.com/catenary-data/wire.report/internal/ingest"
	"github.com/catenary-data/wire.report/internal/report"
	"github.com/catenary-data/wire.report/internal/session"
	"github.com/catenary-data/wire.report/internal/version"
	"github.com/catenary-data/wire.report/internal/wire"
)

var (
	videoPath   = flag.String("video", "", "Video file to process")
	cameraID    = flag.Int("camera", -1, "Camera device ID (use instead of -video)")
	synthFrames = flag.Int("synthetic", 0, "Process N synthetic frames (use instead of -video)")

	configPath  = flag.String("config", "", "JSON config file (defaults apply when omitted)")
	calibPath   = flag.String("calibration", "", "Calibration profile JSON")
	sessionDir  = flag.String("session-dir", "", "Session output directory (overrides config)")
	notes       = flag.String("notes", "", "Free-form note stored with the session")
	writeReport = flag.Bool("report", false, "Render HTML and PNG charts when the run ends")
	logEvery    = flag.Uint64("log-every", 100, "Emit a progress line every N frames (0 disables)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("wiremon", version.String())
		return
	}
	if err := run(); err != nil {
		log.Fatalf("wiremon: %v", err)
	}
}

func run() error {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}
	if *sessionDir != "" {
		cfg.Session.Dir = *sessionDir
	}

	source, sourceName, closeSource, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	cal := wire.NewCalibrator()
	profile, err := loadProfile(cfg)
	if err != nil {
		return err
	}
	if err := cal.Load(profile); err != nil {
		return err
	}

	pre, err := wire.NewPreprocessor(cfg.PreprocessParams())
	if err != nil {
		return err
	}
	defer pre.Close()

	det, err := wire.NewDetector(cfg.DetectorParams())
	if err != nil {
		return err
	}
	engine, err := wire.NewMeasurementEngine(cal, cfg.MeasurementParams())
	if err != nil {
		return err
	}
	rules, err := wire.NewRulesEngine(cfg.Rules.Stagger.Rule(), cfg.Rules.Diameter.Rule(), nil)
	if err != nil {
		return err
	}

	// One directory per session: database, CSV parts and charts together.
	startedAt := time.Now()
	sessionID := session.NewSessionID(startedAt)
	dir := filepath.Join(cfg.Session.Dir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	store, err := session.Open(filepath.Join(dir, "session.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	info := session.Info{
		ID:        sessionID,
		Source:    sourceName,
		StartedAt: startedAt,
		Notes:     *notes,
	}
	if err := store.CreateSession(info); err != nil {
		return err
	}
	log.Printf("session %s -> %s", sessionID, dir)

	var mirror *session.CSVWriter
	if cfg.Session.CSVEnabled {
		mirror, err = session.NewCSVWriter(dir, "samples", cfg.Session.CSVMaxRows)
		if err != nil {
			return err
		}
		defer mirror.Close()
	}

	bus := wire.NewBus(nil)

	writerSub, err := bus.Subscribe("writer", cfg.Bus.WriterQueue, wire.BlockProducer)
	if err != nil {
		return err
	}
	writer, err := session.NewWriter(session.WriterConfig{
		Store:     store,
		SessionID: sessionID,
		CSV:       mirror,
	})
	if err != nil {
		return err
	}
	writer.Start(writerSub)

	displaySub, err := bus.Subscribe("console", cfg.Bus.DisplayQueue, wire.DropOldest)
	if err != nil {
		return err
	}
	displayDone := make(chan struct{})
	go func() {
		defer close(displayDone)
		consoleLoop(displaySub)
	}()

	pipeline, err := wire.NewPipeline(wire.PipelineConfig{
		Source:   source,
		Pre:      pre,
		Detector: det,
		Engine:   engine,
		Rules:    rules,
		Bus:      bus,
		LogEvery: *logEvery,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, stopping", sig)
		cancel()
	}()

	runErr := pipeline.Run(ctx)

	// Bus is closed either way; drain the consumers before reporting.
	writeErr := writer.Wait()
	<-displayDone

	stats := pipeline.Stats()
	log.Printf("done: frames=%d samples=%d invalid=%d skipped=%d anomalies=%d",
		stats.Frames, stats.Samples, stats.Invalid, stats.Skipped, stats.Anomalies)

	if *writeReport {
		if err := renderReport(store, sessionID, dir, cfg); err != nil {
			log.Printf("report failed: %v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	return writeErr
}

// openSource builds the frame source from the mutually exclusive source
// flags.
func openSource(cfg config.Config) (wire.FrameSource, string, func(), error) {
	chosen := 0
	for _, set := range []bool{*videoPath != "", *cameraID >= 0, *synthFrames > 0} {
		if set {
			chosen++
		}
	}
	if chosen != 1 {
		return nil, "", nil, fmt.Errorf("exactly one of -video, -camera or -synthetic is required")
	}

	switch {
	case *videoPath != "":
		src, err := ingest.NewVideoFileSource(ingest.VideoFileConfig{
			Path:       *videoPath,
			FrameSkip:  cfg.Ingest.FrameSkip,
			TargetFPS:  cfg.Ingest.TargetFPS,
			StartFrame: cfg.Ingest.StartFrame,
			EndFrame:   cfg.Ingest.EndFrame,
		})
		if err != nil {
			return nil, "", nil, err
		}
		if err := src.Open(); err != nil {
			return nil, "", nil, err
		}
		return src, *videoPath, func() { src.Close() }, nil

	case *cameraID >= 0:
		src := ingest.NewCameraSource(*cameraID)
		if err := src.Open(); err != nil {
			return nil, "", nil, err
		}
		return src, fmt.Sprintf("camera:%d", *cameraID), func() { src.Close() }, nil

	default:
		src := ingest.NewSyntheticSource(ingest.SyntheticConfig{Frames: *synthFrames})
		return src, "synthetic", func() {}, nil
	}
}

// loadProfile reads the calibration profile, or derives the synthetic
// default when running against the generated scene without one.
func loadProfile(cfg config.Config) (wire.CalibrationProfile, error) {
	if *calibPath != "" {
		return wire.LoadProfileFile(*calibPath)
	}
	if *synthFrames > 0 {
		synth := ingest.NewSyntheticSource(ingest.SyntheticConfig{Frames: *synthFrames})
		return synth.Profile(), nil
	}
	return wire.CalibrationProfile{}, fmt.Errorf("-calibration is required")
}

// consoleLoop prints anomaly transitions as they happen; it is the
// lag-tolerant consumer, so a busy terminal can never stall the worker.
func consoleLoop(sub *wire.Subscription) {
	for ev := range sub.Events() {
		switch ev.Kind {
		case wire.EventAnomaly:
			a := ev.Anomaly
			log.Printf("[%s] %s -> %s at frame %d: %s",
				a.Metric, a.PrevLevel, a.Level, a.Seq, a.Message)
		case wire.EventTerminal:
			if ev.Err != nil {
				log.Printf("stream ended with error: %v", ev.Err)
			}
		}
	}
	if d := sub.Dropped(); d > 0 {
		log.Printf("console consumer lagged: %d events dropped", d)
	}
}

func renderReport(store *session.Store, sessionID, dir string, cfg config.Config) error {
	info, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	samples, err := store.ListSamples(sessionID)
	if err != nil {
		return err
	}
	anomalies, err := store.ListAnomalies(sessionID)
	if err != nil {
		return err
	}
	in := report.Input{
		Session:      info,
		Samples:      samples,
		Anomalies:    anomalies,
		StaggerRule:  cfg.Rules.Stagger.Rule(),
		DiameterRule: cfg.Rules.Diameter.Rule(),
	}

	f, err := os.Create(filepath.Join(dir, "report.html"))
	if err != nil {
		return err
	}
	if err := report.WriteHTML(f, in); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	files, err := report.SavePNGPlots(dir, in)
	if err != nil {
		return err
	}
	log.Printf("report written: %s and %d plots", filepath.Join(dir, "report.html"), len(files))
	return nil
}
