// Package ledger keeps an append-only SQLite history of procedure
// checkpoints and run outcomes inside the workspace root. The engine
// works without it; the ledger serves the audit trail and the
// `nodeforge history` command.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/nodeforge/nodeforge/pkg/procedure"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one historical event: a checkpoint transition or a run
// outcome.
type Entry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Procedure string    `json:"procedure"`
	Kind      string    `json:"kind"` // transition, outcome
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the SQLite-backed history store. It implements
// procedure.HistoryRecorder.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the ledger database at path and
// runs pending migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func (l *Ledger) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(l.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run ledger migrations: %w", err)
	}
	return nil
}

// RecordTransition implements procedure.HistoryRecorder.
func (l *Ledger) RecordTransition(ctx context.Context, runID, proc string, from, to procedure.StateID) error {
	query := `
		INSERT INTO history (run_id, procedure, kind, from_state, to_state, outcome, timestamp)
		VALUES (?, ?, 'transition', ?, ?, '', ?)
	`
	_, err := l.db.ExecContext(ctx, query, runID, proc, string(from), string(to), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecordOutcome implements procedure.HistoryRecorder.
func (l *Ledger) RecordOutcome(ctx context.Context, runID, proc string, state procedure.StateID, outcome string) error {
	query := `
		INSERT INTO history (run_id, procedure, kind, from_state, to_state, outcome, timestamp)
		VALUES (?, ?, 'outcome', ?, '', ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query, runID, proc, string(state), outcome, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first, optionally
// filtered by procedure name. limit <= 0 means no limit.
func (l *Ledger) List(ctx context.Context, proc string, limit int) ([]Entry, error) {
	query := `
		SELECT id, run_id, procedure, kind, from_state, to_state, outcome, timestamp
		FROM history
	`
	args := []interface{}{}
	if proc != "" {
		query += " WHERE procedure = ?"
		args = append(args, proc)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Procedure, &e.Kind, &e.FromState, &e.ToState, &e.Outcome, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
