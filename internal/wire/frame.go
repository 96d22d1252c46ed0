package wire

import (
	"time"

	"gocv.io/x/gocv"
)

// ROI is a rectangle in full-frame pixel coordinates limiting processing
// to the relevant part of a frame. Configuration-derived and constant for
// a session.
type ROI struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Within reports whether the ROI lies entirely inside a frame of the
// given dimensions.
func (r ROI) Within(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0 &&
		r.X+r.W <= width && r.Y+r.H <= height
}

// Frame is a single timestamped raster delivered by a FrameSource. The
// frame is owned by exactly one stage at a time; ownership moves down the
// pipeline and the final owner must Close it.
type Frame struct {
	// Seq is a monotonically increasing sequence number assigned by the
	// source, starting at 1.
	Seq uint64

	// Timestamp is the wall-clock capture time.
	Timestamp time.Time

	// MediaMS is the media timestamp in milliseconds when known.
	MediaMS float64

	// Image holds the raw pixels (BGR or grayscale). Must be closed by
	// the owning stage.
	Image gocv.Mat

	// Source is a human-readable source identifier (file path, camera
	// ID, "synthetic", ...).
	Source string
}

// Close releases the underlying pixel buffer.
func (f *Frame) Close() {
	if f.Image.Ptr() != nil {
		f.Image.Close()
	}
}

// PreparedFrame is the preprocessor output: the ROI crop of a frame,
// grayscale, contrast-normalised and smoothed, ready for edge detection.
type PreparedFrame struct {
	Seq       uint64
	Timestamp time.Time
	MediaMS   float64

	// Gray is the enhanced grayscale ROI image (CV8U).
	Gray gocv.Mat

	// OffsetX, OffsetY locate the ROI's top-left corner in the original
	// frame, for mapping detections back to full-frame coordinates.
	OffsetX, OffsetY int

	Source string
}

// Close releases the prepared pixel buffer.
func (p *PreparedFrame) Close() {
	if p.Gray.Ptr() != nil {
		p.Gray.Close()
	}
}

// FrameSource yields frames to the pipeline. Next returns ErrEndOfStream
// when the source is exhausted; any other error is treated as fatal for
// the session.
type FrameSource interface {
	Next() (*Frame, error)
}
