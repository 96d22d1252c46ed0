// gen-wire-video renders a synthetic contact wire video plus the
// matching calibration profile, for end-to-end testing of the pipeline
// without trackside footage. The wire sweeps sinusoidally in stagger
// while the diameter dips linearly, so both rule engines get exercised.
package main

import (
	"flag"
	"log"
	"math"

	"gocv.io/x/gocv"

	"github.com/catenary-data/wire.report/internal/ingest"
	"github.com/catenary-data/wire.report/internal/wire"
)

var (
	outPath     = flag.String("out", "wire.avi", "Output video file")
	profilePath = flag.String("profile", "wire-calibration.json", "Calibration profile output")

	width  = flag.Int("width", 640, "Frame width in pixels")
	height = flag.Int("height", 480, "Frame height in pixels")
	frames = flag.Int("frames", 500, "Number of frames to render")
	fps    = flag.Float64("fps", 25, "Frame rate")

	scale   = flag.Float64("scale", 2, "Pixels per millimetre")
	ampMM   = flag.Float64("stagger-amp", 220, "Stagger sweep amplitude in mm")
	period  = flag.Int("stagger-period", 200, "Stagger sweep period in frames")
	wearMM  = flag.Float64("wear", 5, "Total diameter loss over the run in mm")
	noise   = flag.Float64("noise", 4, "Gaussian pixel noise standard deviation")
	rndSeed = flag.Int64("seed", 1, "Noise generator seed")
)

func main() {
	flag.Parse()

	src := ingest.NewSyntheticSource(ingest.SyntheticConfig{
		Width:        *width,
		Height:       *height,
		Frames:       *frames,
		ScalePxPerMM: *scale,
		StaggerMM: func(i int) float64 {
			return *ampMM * math.Sin(2*math.Pi*float64(i)/float64(*period))
		},
		DiameterMM: func(i int) float64 {
			return 12.5 - *wearMM*float64(i)/float64(*frames)
		},
		NoiseStdDev: *noise,
		FPS:         *fps,
		Seed:        *rndSeed,
	})

	writer, err := gocv.VideoWriterFile(*outPath, "MJPG", *fps, *width, *height, true)
	if err != nil {
		log.Fatalf("open video writer: %v", err)
	}
	defer writer.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	for i := 0; i < *frames; i++ {
		gray := src.Render(i)
		gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
		if err := writer.Write(bgr); err != nil {
			gray.Close()
			log.Fatalf("write frame %d: %v", i, err)
		}
		gray.Close()
	}

	profile := src.Profile()
	if err := wire.SaveProfileFile(*profilePath, profile); err != nil {
		log.Fatalf("write calibration profile: %v", err)
	}

	log.Printf("wrote %d frames to %s (profile %s, %.1f px/mm)",
		*frames, *outPath, *profilePath, *scale)
}
