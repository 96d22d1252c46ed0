package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/catenary-data/wire.report/internal/wire"
)

var csvHeader = []string{
	"seq", "timestamp", "media_ms", "stagger_mm", "diameter_mm",
	"confidence", "valid", "stagger_level", "diameter_level",
}

// CSVWriter mirrors a session's samples into CSV part files, rolling to
// a new part when the configured row limit is reached so no single file
// grows unbounded on long runs.
type CSVWriter struct {
	dir     string
	base    string
	maxRows int

	part int
	rows int
	f    *os.File
	w    *csv.Writer
}

// NewCSVWriter creates the directory if needed and opens the first part.
func NewCSVWriter(dir, base string, maxRows int) (*CSVWriter, error) {
	if maxRows < 1 {
		return nil, fmt.Errorf("csv max rows must be positive, got %d", maxRows)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create csv dir: %w", err)
	}
	c := &CSVWriter{dir: dir, base: base, maxRows: maxRows}
	if err := c.openPart(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CSVWriter) openPart() error {
	c.part++
	path := filepath.Join(c.dir, fmt.Sprintf("%s-%03d.csv", c.base, c.part))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv part: %w", err)
	}
	c.f = f
	c.w = csv.NewWriter(f)
	c.rows = 0
	return c.w.Write(csvHeader)
}

// Path returns the file currently being written.
func (c *CSVWriter) Path() string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%03d.csv", c.base, c.part))
}

func sampleRow(m wire.MeasurementSample, staggerLevel, diameterLevel wire.Severity) []string {
	return []string{
		strconv.FormatUint(m.Seq, 10),
		m.Timestamp.Format(time.RFC3339Nano),
		strconv.FormatFloat(m.MediaMS, 'f', 3, 64),
		strconv.FormatFloat(m.StaggerMM, 'f', 3, 64),
		strconv.FormatFloat(m.DiameterMM, 'f', 3, 64),
		strconv.FormatFloat(m.Confidence, 'f', 4, 64),
		strconv.FormatBool(m.Valid),
		staggerLevel.String(),
		diameterLevel.String(),
	}
}

// WriteSample appends one row. The severity levels are the rules-engine
// state after this sample, so the CSV is self-contained for plotting.
func (c *CSVWriter) WriteSample(m wire.MeasurementSample, staggerLevel, diameterLevel wire.Severity) error {
	if c.rows >= c.maxRows {
		if err := c.closePart(); err != nil {
			return err
		}
		if err := c.openPart(); err != nil {
			return err
		}
	}
	if err := c.w.Write(sampleRow(m, staggerLevel, diameterLevel)); err != nil {
		return err
	}
	c.rows++
	return nil
}

// streamCSV writes the same row format to a single io.Writer, used by
// exports where rollover makes no sense.
type streamCSV struct {
	w *csv.Writer
}

func newStreamCSV(w io.Writer) *streamCSV { return &streamCSV{w: csv.NewWriter(w)} }

func (s *streamCSV) writeHeader() error { return s.w.Write(csvHeader) }

func (s *streamCSV) writeSample(m wire.MeasurementSample, staggerLevel, diameterLevel wire.Severity) error {
	return s.w.Write(sampleRow(m, staggerLevel, diameterLevel))
}

func (s *streamCSV) flush() error {
	s.w.Flush()
	return s.w.Error()
}

func (c *CSVWriter) closePart() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// Close flushes and closes the current part.
func (c *CSVWriter) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.closePart()
	c.f = nil
	c.w = nil
	return err
}
