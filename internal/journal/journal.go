// Package journal keeps a local sqlite history of print attempts.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed resources/schema.sql
var schema string

// Entry is one recorded print attempt.
type Entry struct {
	ID                  int64
	CreatedAt           time.Time
	Device              string
	LineCount           int
	Intensity           uint8
	Outcome             string
	CompletionConfirmed bool
}

type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open journal database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't initialise journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one attempt and returns its id.
func (j *Journal) Record(e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	res, err := j.db.Exec(
		`INSERT INTO print_history (created_at, device, line_count, intensity, outcome, completion_confirmed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.Device,
		e.LineCount,
		e.Intensity,
		e.Outcome,
		e.CompletionConfirmed,
	)
	if err != nil {
		return 0, fmt.Errorf("couldn't record print attempt: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit attempts, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT id, created_at, device, line_count, intensity, outcome, completion_confirmed
		 FROM print_history ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't query print history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &createdAt, &e.Device, &e.LineCount, &e.Intensity, &e.Outcome, &e.CompletionConfirmed); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
