package session

import (
	"fmt"
	"log"
	"time"

	"github.com/catenary-data/wire.report/internal/wire"
)

// WriterConfig configures the persistence consumer.
type WriterConfig struct {
	Store     *Store
	SessionID string

	// CSV is an optional sample mirror; nil disables it.
	CSV *CSVWriter

	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger
}

// Writer drains a bus subscription into the store (and CSV mirror). It
// is the data-loss-intolerant consumer, so it should be subscribed with
// the blocking policy and a generous queue.
type Writer struct {
	store     *Store
	sessionID string
	csv       *CSVWriter
	logger    *log.Logger

	samples   uint64
	invalid   uint64
	anomalies uint64

	// Rules state per metric, fed by anomaly events. A sample's CSV row
	// is written once all its anomaly events have been seen, which is
	// when the next sample (or the terminal event) arrives.
	levels  map[wire.Metric]wire.Severity
	pending *wire.MeasurementSample

	doneCh chan struct{}
	err    error
}

// NewWriter validates the config.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("writer requires a store")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("writer requires a session ID")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		csv:       cfg.CSV,
		logger:    logger,
		levels: map[wire.Metric]wire.Severity{
			wire.MetricStagger:  wire.SeverityNormal,
			wire.MetricDiameter: wire.SeverityNormal,
		},
		doneCh: make(chan struct{}),
	}, nil
}

// Start drains the subscription in a background goroutine. The writer
// finishes when the bus closes the stream; use Wait to collect the
// result.
func (w *Writer) Start(sub *wire.Subscription) {
	go func() {
		defer close(w.doneCh)
		w.err = w.drain(sub)
	}()
}

// Wait blocks until the stream is fully drained and the session is
// finished in the store, then returns the first persistence error (or
// the pipeline's terminal error).
func (w *Writer) Wait() error {
	<-w.doneCh
	return w.err
}

func (w *Writer) drain(sub *wire.Subscription) error {
	var terminalErr error
	for ev := range sub.Events() {
		switch ev.Kind {
		case wire.EventSample:
			if err := w.handleSample(ev.Sample); err != nil {
				return err
			}
		case wire.EventAnomaly:
			if err := w.handleAnomaly(ev.Anomaly); err != nil {
				return err
			}
		case wire.EventTerminal:
			terminalErr = ev.Err
		}
	}

	if err := w.flushPending(); err != nil {
		return err
	}
	if dropped := sub.Dropped(); dropped > 0 {
		// Should never happen on a blocking subscription.
		w.logger.Printf("[Writer] %d events dropped from persistence queue", dropped)
	}

	// One sample per processed frame; frames skipped upstream never
	// reach the bus, so the two counters coincide here.
	err := w.store.FinishSession(w.sessionID, time.Now(),
		w.samples, w.samples, w.invalid, w.anomalies)
	if err != nil {
		return err
	}
	w.logger.Printf("[Writer] session %s finished: %d samples (%d invalid), %d anomalies",
		w.sessionID, w.samples, w.invalid, w.anomalies)
	return terminalErr
}

func (w *Writer) handleSample(m wire.MeasurementSample) error {
	if err := w.flushPending(); err != nil {
		return err
	}
	if err := w.store.InsertSample(w.sessionID, m); err != nil {
		return err
	}
	w.samples++
	if !m.Valid {
		w.invalid++
	}
	w.pending = &m
	return nil
}

func (w *Writer) handleAnomaly(a wire.AnomalyEvent) error {
	w.levels[a.Metric] = a.Level
	if err := w.store.InsertAnomaly(w.sessionID, a); err != nil {
		return err
	}
	w.anomalies++
	return nil
}

func (w *Writer) flushPending() error {
	if w.pending == nil || w.csv == nil {
		w.pending = nil
		return nil
	}
	err := w.csv.WriteSample(*w.pending,
		w.levels[wire.MetricStagger], w.levels[wire.MetricDiameter])
	w.pending = nil
	return err
}
