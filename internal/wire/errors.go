package wire

import (
	"errors"
	"fmt"
)

// ErrNoCalibration is returned when a metric conversion is requested
// before any calibration profile has been loaded. The pipeline treats it
// as fatal for the session: measurement cannot proceed without a scale.
var ErrNoCalibration = errors.New("no calibration profile loaded")

// ErrEndOfStream is the sentinel a FrameSource returns when the source
// has no more frames. It signals normal pipeline termination, not an
// error condition.
var ErrEndOfStream = errors.New("end of stream")

// InvalidFrameError reports a frame whose dimensions are incompatible
// with the configured ROI. The frame is skipped; the pipeline continues.
type InvalidFrameError struct {
	Seq    uint64
	Width  int
	Height int
	ROI    ROI
}

func (e *InvalidFrameError) Error() string {
	return fmt.Sprintf("frame %d (%dx%d) incompatible with ROI %+v",
		e.Seq, e.Width, e.Height, e.ROI)
}
