// Package journal keeps a SQLite history of link events for diagnostics.
// It is written to and never read back to choose a link speed.
package journal

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/gnsslink/internal/gnsslink"
	"github.com/banshee-data/gnsslink/internal/monitoring"
	"github.com/banshee-data/gnsslink/internal/version"
)

// Journal records link events of one process run, its session, into a
// SQLite database shared with earlier sessions.
type Journal struct {
	db      *sql.DB
	path    string
	session string

	// dropped counts events that could not be written.
	dropped atomic.Int64
}

// Entry is one recorded event.
type Entry struct {
	ID      int64     `json:"id"`
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Path    string    `json:"path"`
	Baud    int       `json:"baud"`
	Command string    `json:"command,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Open opens or creates the journal at path, applies pending migrations and
// starts a new session.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// SQLite allows a single writer; the reader goroutine and the foreground
	// both record events.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure journal %s: %w", path, err)
	}

	j := &Journal{db: db, path: path, session: uuid.NewString()}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(
		"INSERT INTO link_sessions (session_id, started_unix_ns, version) VALUES (?, ?, ?)",
		j.session, time.Now().UnixNano(), version.String(),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start journal session: %w", err)
	}
	return j, nil
}

// Session returns the ID of the current session.
func (j *Journal) Session() string { return j.session }

// Dropped returns how many events failed to be written.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

// Append writes one event to the current session.
func (j *Journal) Append(e gnsslink.Event) error {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	_, err := j.db.Exec(
		`INSERT INTO link_events (
			session_id, recorded_unix_ns, kind, path, baud, command, message, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.session, ts.UnixNano(), string(e.Kind), e.Path, e.Baud, e.Command, e.Message, errText,
	)
	return err
}

// Record is a gnsslink.StatusFunc. Write failures are logged and counted,
// never returned to the link manager.
func (j *Journal) Record(e gnsslink.Event) {
	if err := j.Append(e); err != nil {
		if j.dropped.Add(1) == 1 {
			monitoring.Logf("[journal] failed to record %s event: %v", e.Kind, err)
		}
	}
}

// Recent returns up to limit entries, newest first. A non-empty kind keeps
// only events of that kind. Entries from every session are included.
func (j *Journal) Recent(limit int, kind string) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_id, session_id, recorded_unix_ns, kind, path, baud, command, message, error
		FROM link_events`
	args := []any{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY event_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ns int64
		if err := rows.Scan(&e.ID, &e.Session, &ns, &e.Kind, &e.Path, &e.Baud, &e.Command, &e.Message, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Time = time.Unix(0, ns).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Counts returns the number of recorded events per kind in the current
// session.
func (j *Journal) Counts() (map[string]int, error) {
	rows, err := j.db.Query(
		"SELECT kind, COUNT(*) FROM link_events WHERE session_id = ? GROUP BY kind",
		j.session,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Sessions returns the number of sessions recorded in the database.
func (j *Journal) Sessions() (int, error) {
	var n int
	err := j.db.QueryRow("SELECT COUNT(*) FROM link_sessions").Scan(&n)
	return n, err
}
