// Package store keeps a SQLite history of module runs.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database at dbPath, creating its directory, and runs
// migrations. ":memory:" opens a private in-memory database.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateRun inserts a new Run. An empty ID is filled with a fresh uuid and
// an empty status becomes "running".
func (s *Store) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = "running"
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}

	const query = `
		INSERT INTO runs (
			id, operation, format, src, dest, state, dest_state, changed,
			targets, missing, dest_bytes, status, error_message, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(
		query,
		run.ID, run.Operation, run.Format, run.Src, run.Dest, run.State,
		run.DestState, run.Changed, run.Targets, run.Missing, run.DestBytes,
		run.Status, run.ErrorMessage, run.StartTime, run.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing Run by ID
func (s *Store) UpdateRun(run *Run) error {
	const query = `
		UPDATE runs SET
			operation = ?, format = ?, src = ?, dest = ?, state = ?, dest_state = ?,
			changed = ?, targets = ?, missing = ?, dest_bytes = ?, status = ?,
			error_message = ?, start_time = ?, end_time = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.Operation, run.Format, run.Src, run.Dest, run.State, run.DestState,
		run.Changed, run.Targets, run.Missing, run.DestBytes, run.Status,
		run.ErrorMessage, run.StartTime, run.EndTime, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

const runColumns = `
	id, operation, format, src, dest, state, dest_state, changed, targets,
	missing, dest_bytes, status, error_message, start_time, end_time
`

func scanRun(row interface{ Scan(...any) error }, run *Run) error {
	return row.Scan(
		&run.ID, &run.Operation, &run.Format, &run.Src, &run.Dest, &run.State,
		&run.DestState, &run.Changed, &run.Targets, &run.Missing, &run.DestBytes,
		&run.Status, &run.ErrorMessage, &run.StartTime, &run.EndTime,
	)
}

// GetRun retrieves a Run by ID
func (s *Store) GetRun(id string) (*Run, error) {
	run := &Run{}
	err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id), run)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first
func (s *Store) ListRuns(filter RunFilter) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE 1 = 1"
	var args []interface{}

	if filter.Operation != "" {
		query += " AND operation = ?"
		args = append(args, filter.Operation)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY start_time DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run := Run{}
		if err := scanRun(rows, &run); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// PruneRuns deletes runs that started before cutoff and returns how many
// were removed
func (s *Store) PruneRuns(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM runs WHERE start_time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
