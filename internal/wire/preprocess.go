package wire

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// PreprocessParams configures the frame preprocessing stage.
type PreprocessParams struct {
	// ROI restricts processing to a fixed rectangle. Nil processes the
	// whole frame.
	ROI *ROI

	// CLAHEClipLimit is the contrast-limited histogram equalisation clip
	// limit.
	CLAHEClipLimit float64

	// CLAHETileGrid is the CLAHE tile grid size (NxN).
	CLAHETileGrid int

	// BlurKernel is the Gaussian blur kernel size; must be odd.
	BlurKernel int
}

// DefaultPreprocessParams returns the stock preprocessing parameters.
func DefaultPreprocessParams() PreprocessParams {
	return PreprocessParams{
		CLAHEClipLimit: 2.0,
		CLAHETileGrid:  8,
		BlurKernel:     5,
	}
}

// Preprocessor turns a raw Frame into a PreparedFrame: ROI crop,
// grayscale conversion, CLAHE contrast normalisation and Gaussian blur.
// Prepare is deterministic: the same frame and parameters always produce
// the same output.
type Preprocessor struct {
	params PreprocessParams
	clahe  gocv.CLAHE
}

// NewPreprocessor validates params and builds the CLAHE operator once.
func NewPreprocessor(params PreprocessParams) (*Preprocessor, error) {
	if params.BlurKernel < 1 || params.BlurKernel%2 == 0 {
		return nil, fmt.Errorf("blur kernel size must be a positive odd number, got %d", params.BlurKernel)
	}
	if params.CLAHEClipLimit <= 0 {
		return nil, fmt.Errorf("CLAHE clip limit must be positive, got %g", params.CLAHEClipLimit)
	}
	if params.CLAHETileGrid < 1 {
		return nil, fmt.Errorf("CLAHE tile grid must be at least 1, got %d", params.CLAHETileGrid)
	}
	if params.ROI != nil && (params.ROI.W <= 0 || params.ROI.H <= 0) {
		return nil, fmt.Errorf("ROI must have positive dimensions, got %+v", *params.ROI)
	}
	clahe := gocv.NewCLAHEWithParams(params.CLAHEClipLimit,
		image.Pt(params.CLAHETileGrid, params.CLAHETileGrid))
	return &Preprocessor{params: params, clahe: clahe}, nil
}

// Close releases the CLAHE operator.
func (p *Preprocessor) Close() {
	p.clahe.Close()
}

// Prepare crops, converts and enhances one frame. The input frame is not
// modified and remains owned by the caller. Returns *InvalidFrameError
// when the configured ROI falls outside the frame bounds.
func (p *Preprocessor) Prepare(f *Frame) (*PreparedFrame, error) {
	width := f.Image.Cols()
	height := f.Image.Rows()

	offsetX, offsetY := 0, 0
	src := f.Image
	var crop gocv.Mat
	if p.params.ROI != nil {
		r := *p.params.ROI
		if !r.Within(width, height) {
			return nil, &InvalidFrameError{Seq: f.Seq, Width: width, Height: height, ROI: r}
		}
		region := f.Image.Region(image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H))
		crop = region.Clone()
		region.Close()
		src = crop
		offsetX, offsetY = r.X, r.Y
	}

	var gray gocv.Mat
	if src.Channels() == 3 {
		gray = gocv.NewMat()
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		gray = src.Clone()
	}
	if crop.Ptr() != nil {
		crop.Close()
	}

	enhanced := gocv.NewMat()
	p.clahe.Apply(gray, &enhanced)
	gray.Close()

	blurred := gocv.NewMat()
	k := p.params.BlurKernel
	gocv.GaussianBlur(enhanced, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	enhanced.Close()

	return &PreparedFrame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		MediaMS:   f.MediaMS,
		Gray:      blurred,
		OffsetX:   offsetX,
		OffsetY:   offsetY,
		Source:    f.Source,
	}, nil
}
