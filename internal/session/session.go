// Package session persists measurement runs: one SQLite database holds
// every session's samples and anomaly events, with an optional rolling
// CSV mirror per session for quick inspection.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Info describes one recorded measurement run.
type Info struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is the zero time while the session is live.
	FinishedAt time.Time `json:"finished_at"`

	Frames    uint64 `json:"frames"`
	Samples   uint64 `json:"samples"`
	Invalid   uint64 `json:"invalid"`
	Anomalies uint64 `json:"anomalies"`

	Notes string `json:"notes,omitempty"`
}

// Finished reports whether the session was closed out.
func (i Info) Finished() bool { return !i.FinishedAt.IsZero() }

// NewSessionID returns a sortable session identifier: the start time
// plus a short random suffix so concurrent starts never collide.
func NewSessionID(t time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return t.UTC().Format("20060102-150405") + "-" + suffix
}
