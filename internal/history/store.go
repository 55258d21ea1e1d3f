// Package history persists a record per dispatched job: who asked for what,
// which backend served it and how it ended. Document bytes are never stored.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Record struct {
	ID          string     `json:"jobId"`
	Printer     string     `json:"printer"`
	Backend     string     `json:"backend,omitempty"`
	Copies      int        `json:"copies"`
	SizeBytes   int64      `json:"sizeBytes"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS print_jobs (
			id TEXT PRIMARY KEY,
			printer TEXT NOT NULL DEFAULT '',
			backend TEXT NOT NULL DEFAULT '',
			copies INTEGER NOT NULL DEFAULT 1,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			submitted_at DATETIME NOT NULL,
			completed_at DATETIME
		)
	`); err != nil {
		return fmt.Errorf("failed to create print_jobs table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_print_jobs_submitted_at
		ON print_jobs (submitted_at DESC)
	`); err != nil {
		return fmt.Errorf("failed to create print_jobs index: %w", err)
	}

	return nil
}

func (s *Store) RecordSubmitted(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO print_jobs (id, printer, copies, size_bytes, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Printer, r.Copies, r.SizeBytes, StatusSubmitted, r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job record: %w", err)
	}
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, id, backend string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE print_jobs SET status = ?, backend = ?, completed_at = ? WHERE id = ?
	`, StatusCompleted, backend, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id, backend, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE print_jobs SET status = ?, backend = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, StatusFailed, backend, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, printer, backend, copies, size_bytes, status, error_message, submitted_at, completed_at
		FROM print_jobs WHERE id = ?
	`, id)
	return scanRecord(row)
}

func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, printer, backend, copies, size_bytes, status, error_message, submitted_at, completed_at
		FROM print_jobs
		ORDER BY submitted_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Printer, &r.Backend, &r.Copies, &r.SizeBytes,
			&r.Status, &r.Error, &r.SubmittedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Printer, &r.Backend, &r.Copies, &r.SizeBytes,
		&r.Status, &r.Error, &r.SubmittedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job record: %w", err)
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}
