package session

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/catenary-data/wire.report/internal/wire"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the session database. Schema is managed by embedded
// migrations, applied on Open.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and brings the schema up
// to the latest version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db %s: %w", path, err)
	}
	// A single writer keeps sqlite happy under the writer goroutine plus
	// ad-hoc readers.
	db.SetMaxOpenConns(1)

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB
	// connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// CreateSession records the start of a run.
func (s *Store) CreateSession(info Info) error {
	_, err := s.Exec(
		`INSERT INTO sessions (id, source, started_at_ns, notes) VALUES (?, ?, ?, ?)`,
		info.ID, info.Source, info.StartedAt.UnixNano(), info.Notes,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", info.ID, err)
	}
	return nil
}

// FinishSession closes out a run with its final counters.
func (s *Store) FinishSession(id string, finishedAt time.Time, frames, samples, invalid, anomalies uint64) error {
	res, err := s.Exec(
		`UPDATE sessions SET finished_at_ns = ?, frames = ?, samples = ?, invalid = ?, anomalies = ?
		 WHERE id = ?`,
		finishedAt.UnixNano(), frames, samples, invalid, anomalies, id,
	)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish session: unknown session %s", id)
	}
	return nil
}

// InsertSample stores one per-frame measurement.
func (s *Store) InsertSample(sessionID string, m wire.MeasurementSample) error {
	valid := 0
	if m.Valid {
		valid = 1
	}
	_, err := s.Exec(
		`INSERT INTO measurements (
			session_id, seq, timestamp_ns, media_ms, stagger_mm, diameter_mm,
			confidence, valid, centre_x, centre_y
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, m.Seq, m.Timestamp.UnixNano(), m.MediaMS, m.StaggerMM,
		m.DiameterMM, m.Confidence, valid, m.CentreX, m.CentreY,
	)
	if err != nil {
		return fmt.Errorf("insert sample seq %d: %w", m.Seq, err)
	}
	return nil
}

// InsertAnomaly stores one rules-engine transition.
func (s *Store) InsertAnomaly(sessionID string, a wire.AnomalyEvent) error {
	_, err := s.Exec(
		`INSERT INTO anomalies (
			session_id, seq, timestamp_ns, metric, level, prev_level,
			value_mm, threshold_mm, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, a.Seq, a.Timestamp.UnixNano(), string(a.Metric),
		int(a.Level), int(a.PrevLevel), a.Value, a.Threshold, a.Message,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly seq %d: %w", a.Seq, err)
	}
	return nil
}

// GetSession returns one session's metadata.
func (s *Store) GetSession(id string) (Info, error) {
	row := s.QueryRow(
		`SELECT id, source, started_at_ns, finished_at_ns, frames, samples, invalid, anomalies, notes
		 FROM sessions WHERE id = ?`, id,
	)
	info, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Info{}, fmt.Errorf("unknown session %s", id)
	}
	return info, err
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]Info, error) {
	rows, err := s.Query(
		`SELECT id, source, started_at_ns, finished_at_ns, frames, samples, invalid, anomalies, notes
		 FROM sessions ORDER BY started_at_ns DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Info, error) {
	var info Info
	var startedNS, finishedNS int64
	err := r.Scan(&info.ID, &info.Source, &startedNS, &finishedNS,
		&info.Frames, &info.Samples, &info.Invalid, &info.Anomalies, &info.Notes)
	if err != nil {
		return Info{}, err
	}
	info.StartedAt = time.Unix(0, startedNS)
	if finishedNS != 0 {
		info.FinishedAt = time.Unix(0, finishedNS)
	}
	return info, nil
}

// ListSamples returns a session's measurements in sequence order.
func (s *Store) ListSamples(sessionID string) ([]wire.MeasurementSample, error) {
	rows, err := s.Query(
		`SELECT seq, timestamp_ns, media_ms, stagger_mm, diameter_mm, confidence, valid, centre_x, centre_y
		 FROM measurements WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.MeasurementSample
	for rows.Next() {
		var m wire.MeasurementSample
		var ts int64
		var valid int
		err := rows.Scan(&m.Seq, &ts, &m.MediaMS, &m.StaggerMM, &m.DiameterMM,
			&m.Confidence, &valid, &m.CentreX, &m.CentreY)
		if err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ts)
		m.Valid = valid != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListAnomalies returns a session's anomaly events in sequence order.
func (s *Store) ListAnomalies(sessionID string) ([]wire.AnomalyEvent, error) {
	rows, err := s.Query(
		`SELECT seq, timestamp_ns, metric, level, prev_level, value_mm, threshold_mm, message
		 FROM anomalies WHERE session_id = ? ORDER BY seq, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.AnomalyEvent
	for rows.Next() {
		var a wire.AnomalyEvent
		var ts int64
		var metric string
		var level, prev int
		err := rows.Scan(&a.Seq, &ts, &metric, &level, &prev, &a.Value, &a.Threshold, &a.Message)
		if err != nil {
			return nil, err
		}
		a.Timestamp = time.Unix(0, ts)
		a.Metric = wire.Metric(metric)
		a.Level = wire.Severity(level)
		a.PrevLevel = wire.Severity(prev)
		out = append(out, a)
	}
	return out, rows.Err()
}
