// Package sqlite implements eventstream.FileStore on a single-file,
// pure-Go SQLite database (modernc.org/sqlite — no cgo), a convenient
// embedded alternative to store/local when atomic multi-key transactions
// across events and cursors are useful.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/agentrt/agentrt/errs"
)

// Store is a FileStore backed by a "kv" table in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the kv table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.NewStorageError("open sqlite store", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
	const ddl = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, errs.NewStorageError("create kv table", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put upserts key/data.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	const q = `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, data); err != nil {
		return errs.NewStorageError("put "+key, err)
	}
	return nil
}

// Get returns the value for key, or errs.NotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound(key)
	}
	if err != nil {
		return nil, errs.NewStorageError("get "+key, err)
	}
	return data, nil
}

// List returns every key with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, errs.NewStorageError("list "+prefix, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.NewStorageError("scan list row", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageError("iterate list rows", err)
	}
	return keys, nil
}

func escapeLike(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(r)
}
