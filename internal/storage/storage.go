// Package storage persists per-browser key/value state in SQLite so that a
// browser keeps its session across page reloads and process restarts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS browser_storage (
	browser_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (browser_id, key)
);
CREATE INDEX IF NOT EXISTS idx_browser_storage_updated ON browser_storage(updated_at)
`

type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dsn. Use ":memory:" style DSNs
// such as "file:name?mode=memory&cache=shared" in tests.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate storage: %w", err)
		}
	}
	return &DB{db: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Browser returns the storage area of one browser.
func (d *DB) Browser(id string) *Browser {
	return &Browser{db: d, id: id}
}

// Prune removes browsers that have not written anything since cutoff and
// hold no credential. It returns the number of rows removed.
func (d *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM browser_storage
		WHERE browser_id IN (
			SELECT browser_id FROM browser_storage
			GROUP BY browser_id
			HAVING MAX(updated_at) < ? AND SUM(CASE WHEN key = 'accessToken' THEN 1 ELSE 0 END) = 0
		)`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune storage: %w", err)
	}
	return res.RowsAffected()
}

// Browser implements session.Storage for a single browser id.
type Browser struct {
	db *DB
	id string
}

func (b *Browser) ID() string { return b.id }

func (b *Browser) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := b.db.db.QueryRowContext(ctx,
		`SELECT value FROM browser_storage WHERE browser_id = ? AND key = ?`, b.id, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (b *Browser) Set(ctx context.Context, key, value string) error {
	_, err := b.db.db.ExecContext(ctx, `
		INSERT INTO browser_storage (browser_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(browser_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.id, key, value, b.db.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (b *Browser) Delete(ctx context.Context, key string) error {
	if _, err := b.db.db.ExecContext(ctx,
		`DELETE FROM browser_storage WHERE browser_id = ? AND key = ?`, b.id, key,
	); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys a browser currently holds, sorted.
func (b *Browser) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.db.QueryContext(ctx,
		`SELECT key FROM browser_storage WHERE browser_id = ? ORDER BY key`, b.id)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
