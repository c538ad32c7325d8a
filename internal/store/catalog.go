package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry describes one processed artifact currently on disk.
type Entry struct {
	Name      string // processed file name, unique
	Original  string // sanitized upload name
	Format    string
	Rows      int
	Warning   string
	CreatedAt time.Time
}

// Catalog indexes processed artifacts in SQLite so the landing page can
// list recent results and the download handler can refuse names it never
// produced. It stores artifact metadata only; rows never go to the
// database.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (and creates, if needed) the catalog database.
// Startup is idempotent: the DDL is create-if-not-exists.
func OpenCatalog(ctx context.Context, dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS artifacts (
	name       TEXT PRIMARY KEY,
	original   TEXT NOT NULL,
	format     TEXT NOT NULL,
	rows       INTEGER NOT NULL,
	warning    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create artifacts table: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() { _ = c.db.Close() }

// Record upserts the entry for a processed artifact. Re-processing a file
// with the same name replaces the previous entry, matching the
// overwrite-on-collision file behavior.
//
// SQLite stores the timestamp as RFC3339Nano text for reliable round-trip
// behavior and easy debugging.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO artifacts (name, original, format, rows, warning, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	original = excluded.original,
	format = excluded.format,
	rows = excluded.rows,
	warning = excluded.warning,
	created_at = excluded.created_at`
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, q,
		e.Name, e.Original, e.Format, e.Rows, e.Warning, ts.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", e.Name, err)
	}
	return nil
}

// Lookup returns the entry for name, or (nil, nil) when unknown.
func (c *Catalog) Lookup(ctx context.Context, name string) (*Entry, error) {
	const q = `SELECT name, original, format, rows, warning, created_at FROM artifacts WHERE name = ?`
	var e Entry
	var ts string
	err := c.db.QueryRowContext(ctx, q, name).Scan(&e.Name, &e.Original, &e.Format, &e.Rows, &e.Warning, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact %s: %w", name, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return &e, nil
}

// Recent returns up to n entries, newest first.
func (c *Catalog) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	const q = `SELECT name, original, format, rows, warning, created_at FROM artifacts ORDER BY created_at DESC LIMIT ?`
	rows, err := c.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.Name, &e.Original, &e.Format, &e.Rows, &e.Warning, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
