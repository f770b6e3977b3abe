// Package store persists evaluations to SQLite: the full input snapshot,
// the recommendation, and the audit trace, one row per evaluation. The
// log is append-only — rows are never updated — so a stored history can
// be replayed byte-for-byte against the current engine.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/glucoloop/dosing-controller/internal/model"
	"github.com/glucoloop/dosing-controller/internal/trace"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id             TEXT PRIMARY KEY,
	created_at     TEXT NOT NULL,
	evaluated_at   TEXT NOT NULL,
	snapshot_json  TEXT NOT NULL,
	eventual_bg    REAL,
	insulin_req    REAL,
	rate           REAL NOT NULL,
	duration_min   INTEGER NOT NULL,
	bolus          REAL NOT NULL,
	reasons_json   TEXT,
	trace_json     TEXT
);

CREATE INDEX IF NOT EXISTS idx_evaluations_evaluated_at
	ON evaluations(evaluated_at);
`

// #endregion schema

// #region record

// Record is one persisted evaluation.
type Record struct {
	ID          string
	CreatedAt   time.Time
	EvaluatedAt time.Time

	Snapshot       model.Snapshot
	Recommendation model.Recommendation

	// TraceStages is the recorded audit trace; empty when the row was
	// written without one.
	TraceStages []trace.Stage
}

// #endregion record

// #region store

// Store manages the evaluation log in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for ad-hoc queries by commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region log

// Log appends one evaluation to the store and returns the assigned ID.
// The trace may be nil.
func (s *Store) Log(snap model.Snapshot, rec model.Recommendation, tr *trace.Trace) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	reasonsJSON, err := json.Marshal(rec.Decisions)
	if err != nil {
		return "", fmt.Errorf("marshal decisions: %w", err)
	}

	var tracePtr interface{}
	if tr != nil {
		traceJSON, err := json.Marshal(tr.Stages())
		if err != nil {
			return "", fmt.Errorf("marshal trace: %w", err)
		}
		tracePtr = string(traceJSON)
	}

	var eventualPtr, reqPtr interface{}
	if v, ok := rec.EventualBG.Get(); ok {
		eventualPtr = v
	}
	if v, ok := rec.InsulinReq.Get(); ok {
		reqPtr = v
	}

	_, err = s.db.Exec(
		`INSERT INTO evaluations
		 (id, created_at, evaluated_at, snapshot_json, eventual_bg, insulin_req, rate, duration_min, bolus, reasons_json, trace_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, now.Format(time.RFC3339Nano), snap.At.UTC().Format(time.RFC3339Nano),
		string(snapJSON), eventualPtr, reqPtr,
		rec.Rate, rec.DurationMinutes, rec.Bolus,
		string(reasonsJSON), tracePtr,
	)
	if err != nil {
		return "", fmt.Errorf("insert evaluation: %w", err)
	}
	return id, nil
}

// #endregion log

// #region read

// Get retrieves one evaluation by ID.
func (s *Store) Get(id string) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, evaluated_at, snapshot_json, eventual_bg, insulin_req,
		        rate, duration_min, bolus, reasons_json, trace_json
		 FROM evaluations WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	return rec, nil
}

// List returns the most recent evaluations, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, evaluated_at, snapshot_json, eventual_bg, insulin_req,
		        rate, duration_min, bolus, reasons_json, trace_json
		 FROM evaluations ORDER BY evaluated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListAll returns every evaluation in chronological order, for replay.
func (s *Store) ListAll() ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, evaluated_at, snapshot_json, eventual_bg, insulin_req,
		        rate, duration_min, bolus, reasons_json, trace_json
		 FROM evaluations ORDER BY evaluated_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scannable) (Record, error) {
	var rec Record
	var createdStr, evaluatedStr, snapJSON string
	var eventual, req sql.NullFloat64
	var reasonsJSON, traceJSON sql.NullString

	err := row.Scan(&rec.ID, &createdStr, &evaluatedStr, &snapJSON, &eventual, &req,
		&rec.Recommendation.Rate, &rec.Recommendation.DurationMinutes,
		&rec.Recommendation.Bolus, &reasonsJSON, &traceJSON)
	if err != nil {
		return Record{}, err
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.EvaluatedAt, _ = time.Parse(time.RFC3339Nano, evaluatedStr)

	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return Record{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if eventual.Valid {
		rec.Recommendation.EventualBG = model.Some(eventual.Float64)
	}
	if req.Valid {
		rec.Recommendation.InsulinReq = model.Some(req.Float64)
	}
	if reasonsJSON.Valid && reasonsJSON.String != "" {
		if err := json.Unmarshal([]byte(reasonsJSON.String), &rec.Recommendation.Decisions); err != nil {
			return Record{}, fmt.Errorf("unmarshal decisions: %w", err)
		}
	}
	if traceJSON.Valid && traceJSON.String != "" {
		if err := json.Unmarshal([]byte(traceJSON.String), &rec.TraceStages); err != nil {
			return Record{}, fmt.Errorf("unmarshal trace: %w", err)
		}
	}
	return rec, nil
}

// #endregion read
