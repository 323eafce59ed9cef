package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteTable = "shabbatcal_cache"

// SQLiteBackend stores entries in a key/value table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("cache: sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite at %q: %w", path, err)
	}
	// One connection avoids "database is locked" under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: sqlite ping: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			cache_key TEXT PRIMARY KEY,
			cache_value BLOB NOT NULL,
			cache_version INTEGER NOT NULL,
			cache_timestamp INTEGER NOT NULL
		);
	`, sqliteTable)
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create table %s: %w", sqliteTable, err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, int, error) {
	var (
		value   []byte
		version int
	)
	query := fmt.Sprintf(`SELECT cache_value, cache_version FROM %s WHERE cache_key = ?`, sqliteTable)
	if err := b.db.QueryRowContext(ctx, query, key).Scan(&value, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return value, version, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte, version int) error {
	query := fmt.Sprintf(`INSERT INTO %s (cache_key, cache_value, cache_version, cache_timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET cache_value = excluded.cache_value, cache_version = excluded.cache_version, cache_timestamp = excluded.cache_timestamp`, sqliteTable)
	_, err := b.db.ExecContext(ctx, query, key, value, version, time.Now().Unix())
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
