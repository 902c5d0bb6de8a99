// Package trace persists flow run events to an embedded libSQL
// database. The trace is append-only telemetry for inspection after a
// run; the engine never reads it back to restore state.
package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// LibSQLTrace implements flow.TraceSink on an embedded libSQL database.
// Safe for concurrent use.
type LibSQLTrace struct {
	db *sql.DB
}

// Open opens (or creates) a trace database at the given path and
// applies the schema. The path should be a file URI, e.g.
// "file:/path/to/trace.db".
func Open(dbPath string) (*LibSQLTrace, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow them all.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	t := &LibSQLTrace{db: db}
	if err := t.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Close closes the database.
func (t *LibSQLTrace) Close() error { return t.db.Close() }

func (t *LibSQLTrace) migrate(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		flow TEXT NOT NULL,
		node TEXT,
		event_type TEXT NOT NULL,
		action TEXT,
		error TEXT,
		sequence INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("create run_events: %w", err)
	}
	if _, err := t.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events (run_id, sequence)`); err != nil {
		return fmt.Errorf("create run_events index: %w", err)
	}
	return nil
}

// Record appends an event with a monotonically increasing per-run
// sequence. A transaction keeps sequence reads and writes from
// interleaving under concurrent branches.
func (t *LibSQLTrace) Record(ctx context.Context, ev flow.Event) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewError(schema.ErrCodeTrace, "begin tx").WithCause(err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, ev.RunID,
	).Scan(&seq)
	if err != nil {
		return schema.NewError(schema.ErrCodeTrace, "next sequence").WithCause(err)
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, flow, node, event_type, action, error, sequence, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Flow, nullStr(ev.Node), string(ev.Type), nullStr(ev.Action), nullStr(ev.Error), seq, ts,
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeTrace, "insert event").WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return schema.NewError(schema.ErrCodeTrace, "commit event").WithCause(err)
	}
	return nil
}

// Events returns all events for a run, ordered by sequence.
func (t *LibSQLTrace) Events(ctx context.Context, runID string) ([]flow.Event, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT run_id, flow, node, event_type, action, error, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY sequence ASC`, runID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTrace, "query events").WithCause(err)
	}
	defer rows.Close()

	var events []flow.Event
	for rows.Next() {
		var ev flow.Event
		var node, action, errMsg sql.NullString
		var evType string
		if err := rows.Scan(&ev.RunID, &ev.Flow, &node, &evType, &action, &errMsg, &ev.Timestamp); err != nil {
			return nil, schema.NewError(schema.ErrCodeTrace, "scan event").WithCause(err)
		}
		ev.Type = flow.EventType(evType)
		ev.Node = node.String
		ev.Action = action.String
		ev.Error = errMsg.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RunIDs returns the distinct run IDs seen, most recent first.
func (t *LibSQLTrace) RunIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT run_id, MAX(timestamp) AS last
		 FROM run_events GROUP BY run_id ORDER BY last DESC LIMIT ?`, limit)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTrace, "query runs").WithCause(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var last time.Time
		if err := rows.Scan(&id, &last); err != nil {
			return nil, schema.NewError(schema.ErrCodeTrace, "scan run id").WithCause(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ flow.TraceSink = (*LibSQLTrace)(nil)
