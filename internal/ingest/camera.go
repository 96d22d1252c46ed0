package ingest

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/catenary-data/wire.report/internal/wire"
)

// CameraSource reads frames from a live capture device. A camera never
// reports end-of-stream on its own; a read failure is treated as a
// corrupted source (session-fatal).
type CameraSource struct {
	deviceID int
	cap      *gocv.VideoCapture
	seq      uint64
}

// NewCameraSource returns a source for the given OpenCV device ID.
func NewCameraSource(deviceID int) *CameraSource {
	return &CameraSource{deviceID: deviceID}
}

// Open opens the capture device.
func (c *CameraSource) Open() error {
	cap, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("could not open camera %d", c.deviceID)
	}
	c.cap = cap
	return nil
}

// Close releases the device.
func (c *CameraSource) Close() error {
	if c.cap != nil {
		err := c.cap.Close()
		c.cap = nil
		return err
	}
	return nil
}

// Next reads one frame from the device.
func (c *CameraSource) Next() (*wire.Frame, error) {
	if c.cap == nil {
		return nil, fmt.Errorf("camera source not opened")
	}
	img := gocv.NewMat()
	if ok := c.cap.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, fmt.Errorf("camera %d read failed", c.deviceID)
	}
	c.seq++
	return &wire.Frame{
		Seq:       c.seq,
		Timestamp: time.Now(),
		Image:     img,
		Source:    fmt.Sprintf("camera:%d", c.deviceID),
	}, nil
}
