package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteCache stores gzip-compressed snapshots in a local SQLite file.
type SQLiteCache struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the cache database.
func OpenSQLite(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteCache{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			location TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			size INTEGER NOT NULL,
			data BLOB NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Put stores or replaces the snapshot of a location.
func (c *SQLiteCache) Put(ctx context.Context, snap Snapshot) error {
	compressed, err := gzipCompress(snap.Data)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshots (location, checksum, fetched_at, size, data) VALUES (?, ?, ?, ?, ?)",
		snap.Location, snap.Checksum, snap.FetchedAt.UnixMilli(), len(snap.Data), compressed)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snap.Location, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the snapshot of a location or ErrNotFound.
func (c *SQLiteCache) Get(ctx context.Context, location string) (*Snapshot, error) {
	var (
		snap       = Snapshot{Location: location}
		fetchedAt  int64
		compressed []byte
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT checksum, fetched_at, data FROM snapshots WHERE location = ?", location,
	).Scan(&snap.Checksum, &fetchedAt, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	snap.Data, err = gzipDecompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	snap.FetchedAt = time.UnixMilli(fetchedAt).UTC()

	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List describes every stored snapshot ordered by location.
func (c *SQLiteCache) List(ctx context.Context) ([]Info, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT location, checksum, fetched_at, size FROM snapshots ORDER BY location")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Info
	for rows.Next() {
		var (
			info      Info
			fetchedAt int64
		)
		if err := rows.Scan(&info.Location, &info.Checksum, &fetchedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.FetchedAt = time.UnixMilli(fetchedAt).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (c *SQLiteCache) Path() string {
	return c.path
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
