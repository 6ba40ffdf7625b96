package database

import (
	"database/sql"
	"fmt"
	"time"

	"rfi-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation is one recorded command run.
type Operation struct {
	ID         int64
	RunID      string
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Summary    string
}

// Duration returns how long the operation ran, or zero while it is running.
func (o *Operation) Duration() time.Duration {
	if !o.FinishedAt.Valid {
		return 0
	}
	return o.FinishedAt.Time.Sub(o.StartedAt)
}

// SQLiteDatabase stores the operation history in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and brings its schema up to
// date. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is its own database, and history writes
	// are sequential anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies that the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// CreateOperation records the start of an operation and returns it with its
// assigned ID.
func (s *SQLiteDatabase) CreateOperation(runID, operation, parameters string, startedAt time.Time) (*Operation, error) {
	res, err := s.db.Exec(
		`INSERT INTO operations (run_id, operation, parameters, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		runID, operation, parameters, startedAt.UTC(), StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return &Operation{
		ID:         id,
		RunID:      runID,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt.UTC(),
		Status:     StatusRunning,
	}, nil
}

// FinishOperation stores the outcome of the operation with the given ID.
func (s *SQLiteDatabase) FinishOperation(id int64, status, summary string, finishedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE operations SET finished_at = ?, status = ?, summary = ? WHERE id = ?`,
		finishedAt.UTC(), status, summary, id,
	)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(limit int) ([]*Operation, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, operation, parameters, started_at, finished_at, status, summary
		 FROM operations ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.RunID, &op.Operation, &op.Parameters,
			&op.StartedAt, &op.FinishedAt, &op.Status, &op.Summary); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
