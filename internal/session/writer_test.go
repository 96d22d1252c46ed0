package session

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catenary-data/wire.report/internal/wire"
)

func TestWriterPersistsStream(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.CreateSession(Info{ID: "s1", Source: "test", StartedAt: time.Now()}))

	dir := t.TempDir()
	mirror, err := NewCSVWriter(dir, "samples", 1000)
	require.NoError(t, err)
	defer mirror.Close()

	w, err := NewWriter(WriterConfig{
		Store:     store,
		SessionID: "s1",
		CSV:       mirror,
		Logger:    log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	bus := wire.NewBus(log.New(io.Discard, "", 0))
	sub, err := bus.Subscribe("writer", 64, wire.BlockProducer)
	require.NoError(t, err)
	w.Start(sub)

	base := time.Now()
	for seq := uint64(1); seq <= 5; seq++ {
		sample := wire.MeasurementSample{
			Seq: seq, Timestamp: base.Add(time.Duration(seq) * 40 * time.Millisecond),
			StaggerMM: float64(seq) * 10, DiameterMM: 12.5, Confidence: 0.9, Valid: seq != 4,
		}
		bus.PublishSample(sample)
		if seq == 3 {
			bus.PublishAnomaly(wire.AnomalyEvent{
				Metric: wire.MetricStagger, Level: wire.SeverityWarning,
				Seq: seq, Timestamp: sample.Timestamp, Value: 30, Threshold: 25,
			})
		}
	}
	bus.Close(nil)
	require.NoError(t, w.Wait())

	samples, err := store.ListSamples("s1")
	require.NoError(t, err)
	assert.Len(t, samples, 5)

	anomalies, err := store.ListAnomalies("s1")
	require.NoError(t, err)
	assert.Len(t, anomalies, 1)

	info, err := store.GetSession("s1")
	require.NoError(t, err)
	assert.True(t, info.Finished())
	assert.Equal(t, uint64(5), info.Samples)
	assert.Equal(t, uint64(1), info.Invalid)
	assert.Equal(t, uint64(1), info.Anomalies)

	require.NoError(t, mirror.Close())
	data, err := os.ReadFile(filepath.Join(dir, "samples-001.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 6) // header + 5 samples

	// The anomaly arrived after sample 3, so that row (and the ones
	// following) carry the WARNING state.
	assert.Contains(t, lines[3], "WARNING")
	assert.Contains(t, lines[1], "NORMAL")
}

func TestWriterPropagatesTerminalError(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.CreateSession(Info{ID: "s1", Source: "cam", StartedAt: time.Now()}))

	w, err := NewWriter(WriterConfig{
		Store: store, SessionID: "s1", Logger: log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	bus := wire.NewBus(log.New(io.Discard, "", 0))
	sub, err := bus.Subscribe("writer", 8, wire.BlockProducer)
	require.NoError(t, err)
	w.Start(sub)

	bus.PublishSample(wire.MeasurementSample{Seq: 1, Timestamp: time.Now(), Valid: true, DiameterMM: 12.5})
	wantErr := errors.New("camera read failed")
	bus.Close(wantErr)

	err = w.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	// The session is still finished with the data received so far.
	info, err := store.GetSession("s1")
	require.NoError(t, err)
	assert.True(t, info.Finished())
	assert.Equal(t, uint64(1), info.Samples)
}

func TestNewWriterValidation(t *testing.T) {
	store := openTestStore(t)
	_, err := NewWriter(WriterConfig{SessionID: "s1"})
	assert.Error(t, err)
	_, err = NewWriter(WriterConfig{Store: store})
	assert.Error(t, err)
}
