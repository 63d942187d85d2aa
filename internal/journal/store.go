package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	payload     TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, id);

CREATE TABLE IF NOT EXISTS metrics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	value       REAL NOT NULL,
	context     TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_name ON metrics(name, id);
`

// #endregion schema

// #region store-struct

// Store is the SQLite-backed journal. It serves both engine collaborator
// roles: the event sink and the metric source. The decision engine's
// worker pool appends concurrently, so id generation is locked and the
// entropy is monotonic: ids minted within the same millisecond still
// sort in mint order.
type Store struct {
	db   *sql.DB
	path string

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// #endregion store-struct

// #region constructor

// Open opens (or creates) the journal database and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	// WAL does not serialize writers; without a busy timeout a second
	// writer fails immediately with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{
		db:      db,
		path:    dbPath,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// #endregion constructor

// #region events

// AppendEvent appends one journal event with the given kind and payload.
func (s *Store) AppendEvent(kind string, payload map[string]any) error {
	var payloadPtr interface{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		payloadPtr = string(raw)
	}
	_, err := s.db.Exec(
		`INSERT INTO events (id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		s.newID(), kind, payloadPtr, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Events returns the most recent events, newest first. An empty kind
// matches all kinds; a negative limit returns everything.
func (s *Store) Events(kind string, limit int) ([]Event, error) {
	query := `SELECT id, kind, payload, created_at FROM events`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payload sql.NullString
		var createdStr string
		if err := rows.Scan(&ev.ID, &ev.Kind, &payload, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// #endregion events

// #region metrics

// RecordMetric persists a single metric observation.
func (s *Store) RecordMetric(m Metric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var ctxPtr interface{}
	if len(m.Context) > 0 {
		raw, err := json.Marshal(m.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		ctxPtr = string(raw)
	}
	_, err := s.db.Exec(
		`INSERT INTO metrics (name, value, context, created_at) VALUES (?, ?, ?, ?)`,
		m.Name, m.Value, ctxPtr, ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	return nil
}

// RecordMetrics persists a batch of metrics in one transaction.
func (s *Store) RecordMetrics(ms []Metric) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range ms {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		var ctxPtr interface{}
		if len(m.Context) > 0 {
			raw, err := json.Marshal(m.Context)
			if err != nil {
				return fmt.Errorf("marshal context: %w", err)
			}
			ctxPtr = string(raw)
		}
		_, err = tx.Exec(
			`INSERT INTO metrics (name, value, context, created_at) VALUES (?, ?, ?, ?)`,
			m.Name, m.Value, ctxPtr, ts.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
	}
	return tx.Commit()
}

// QueryMetrics returns all metrics observed within the trailing window,
// oldest first. Timestamps are parsed and filtered in Go because
// RFC3339Nano strings do not compare lexicographically across
// fractional-second precision.
func (s *Store) QueryMetrics(window time.Duration) ([]Metric, error) {
	return s.queryMetrics(``, nil, window)
}

// QueryMetricsNamed is QueryMetrics restricted to one metric name.
func (s *Store) QueryMetricsNamed(name string, window time.Duration) ([]Metric, error) {
	return s.queryMetrics(` WHERE name = ?`, []interface{}{name}, window)
}

func (s *Store) queryMetrics(where string, args []interface{}, window time.Duration) ([]Metric, error) {
	rows, err := s.db.Query(
		`SELECT name, value, context, created_at FROM metrics`+where+` ORDER BY id ASC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	cutoff := time.Now().UTC().Add(-window)
	var out []Metric
	for rows.Next() {
		var m Metric
		var ctxJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&m.Name, &m.Value, &ctxJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil || ts.Before(cutoff) {
			continue
		}
		m.Timestamp = ts
		if ctxJSON.Valid {
			if err := json.Unmarshal([]byte(ctxJSON.String), &m.Context); err != nil {
				return nil, fmt.Errorf("unmarshal context: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Snapshot returns the latest recorded value for every metric name.
func (s *Store) Snapshot() (map[string]float64, error) {
	rows, err := s.db.Query(`
		SELECT m.name, m.value
		FROM metrics m
		JOIN (SELECT name, MAX(id) AS max_id FROM metrics GROUP BY name) latest
		ON m.id = latest.max_id`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	snap := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap[name] = value
	}
	return snap, rows.Err()
}

// #endregion metrics

// #region stats

// Stats reports row counts, per-kind event counts, and file size.
func (s *Store) Stats() (Stats, error) {
	st := Stats{EventKinds: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&st.Events); err != nil {
		return Stats{}, fmt.Errorf("count events: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM metrics`).Scan(&st.Metrics); err != nil {
		return Stats{}, fmt.Errorf("count metrics: %w", err)
	}

	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return Stats{}, fmt.Errorf("count kinds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return Stats{}, fmt.Errorf("scan kind count: %w", err)
		}
		st.EventKinds[kind] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if fi, err := os.Stat(s.path); err == nil {
		st.DBBytes = fi.Size()
	}
	return st, nil
}

// #endregion stats
