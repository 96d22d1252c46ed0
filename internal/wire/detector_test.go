package wire

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// drawWireFrame renders a dark horizontal wire on a bright background,
// centred at (cx, cy) with the given pixel thickness.
func drawWireFrame(width, height int, cx, cy float64, thickness int) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(215, 0, 0, 0),
		height, width, gocv.MatTypeCV8U)
	dark := color.RGBA{R: 25, G: 25, B: 25, A: 0}
	half := width * 3 / 8
	gocv.Line(&img,
		image.Pt(int(cx)-half, int(cy)),
		image.Pt(int(cx)+half, int(cy)),
		dark, thickness)
	return img
}

func preparedFromMat(t *testing.T, img gocv.Mat) *PreparedFrame {
	t.Helper()
	pre, err := NewPreprocessor(DefaultPreprocessParams())
	if err != nil {
		t.Fatalf("NewPreprocessor: %v", err)
	}
	defer pre.Close()
	pf, err := pre.Prepare(&Frame{Seq: 1, Timestamp: time.Now(), Image: img})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return pf
}

func TestDetectFindsHorizontalWire(t *testing.T) {
	img := drawWireFrame(640, 480, 360, 240, 10)
	defer img.Close()
	pf := preparedFromMat(t, img)
	defer pf.Close()

	d, err := NewDetector(DefaultDetectorParams())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	candidates := d.Detect(pf)
	if len(candidates) == 0 {
		t.Fatal("no candidates on a clean synthetic wire")
	}

	best := candidates[0]
	if best.AngleDeg > 3 {
		t.Errorf("wire is horizontal, got angle %.2f", best.AngleDeg)
	}
	if math.Abs(best.CentreY-240) > 3 {
		t.Errorf("expected centre y near 240, got %.2f", best.CentreY)
	}
	if best.WidthPx <= 0 || best.WidthPx > 30 {
		t.Errorf("implausible width estimate %.2f px for a 10 px wire", best.WidthPx)
	}
	if best.Confidence <= 0 || best.Confidence > 1 {
		t.Errorf("confidence out of range: %g", best.Confidence)
	}
}

func TestDetectEmptySkyYieldsNoCandidates(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(215, 0, 0, 0),
		480, 640, gocv.MatTypeCV8U)
	defer img.Close()
	pf := preparedFromMat(t, img)
	defer pf.Close()

	d, err := NewDetector(DefaultDetectorParams())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	if candidates := d.Detect(pf); len(candidates) != 0 {
		t.Errorf("featureless frame produced %d candidates", len(candidates))
	}
}

func TestDetectRejectsSteepLines(t *testing.T) {
	// A vertical pole, well outside the angle tolerance.
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(215, 0, 0, 0),
		480, 640, gocv.MatTypeCV8U)
	defer img.Close()
	dark := color.RGBA{R: 25, G: 25, B: 25, A: 0}
	gocv.Line(&img, image.Pt(320, 40), image.Pt(320, 440), dark, 8)

	pf := preparedFromMat(t, img)
	defer pf.Close()

	d, _ := NewDetector(DefaultDetectorParams())
	if candidates := d.Detect(pf); len(candidates) != 0 {
		t.Errorf("vertical line accepted: %+v", candidates[0])
	}
}

func TestDetectorReset(t *testing.T) {
	img := drawWireFrame(640, 480, 320, 240, 10)
	defer img.Close()
	pf := preparedFromMat(t, img)
	defer pf.Close()

	d, _ := NewDetector(DefaultDetectorParams())
	if got := d.Detect(pf); len(got) == 0 {
		t.Fatal("setup failed")
	}
	if !d.hasPrev {
		t.Error("detector must remember the accepted angle")
	}
	d.Reset()
	if d.hasPrev || d.prevAngle != 0 {
		t.Error("Reset must clear temporal continuity state")
	}
}

func TestFoldAngle(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{15, 15},
		{-15, 15},
		{90, 90},
		{170, 10},
		{-170, 10},
		{180, 0},
		{195, 15},
	}
	for _, tc := range cases {
		if got := foldAngle(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("foldAngle(%g): want %g, got %g", tc.in, tc.want, got)
		}
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-0.5) != 0 || clamp01(1.5) != 1 || clamp01(0.25) != 0.25 {
		t.Error("clamp01 broken")
	}
}

func TestDetectorParamsValidate(t *testing.T) {
	good := DefaultDetectorParams()
	if err := good.Validate(); err != nil {
		t.Errorf("default params rejected: %v", err)
	}

	bad := good
	bad.CannyHigh = bad.CannyLow
	if err := bad.Validate(); err == nil {
		t.Error("equal canny thresholds accepted")
	}

	bad = good
	bad.AngleToleranceDeg = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero angle tolerance accepted")
	}

	bad = good
	bad.MaxCandidates = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero max candidates accepted")
	}
}
