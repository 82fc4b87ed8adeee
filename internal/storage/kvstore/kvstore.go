// Package kvstore is the on-device durable store: a single sqlite file
// holding key -> JSON blob pairs. Every stateful component keeps its
// in-memory state as a cache of this store and rehydrates from it on start.
package kvstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the store at path. Use ":memory:" in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// Один писатель на файл; sqlite сам сериализует, но без лимита
	// соединений database/sql может открыть второе и поймать SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "kv get")
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, time.Now().UTC().UnixNano())
	return errors.Wrap(err, "kv set")
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrap(err, "kv remove")
}

type Pair struct {
	Key   string
	Value []byte
}

// ListPrefix returns all pairs whose key starts with prefix, ordered by key.
// Queue keys embed a zero-padded sequence number, so key order is FIFO order.
func (s *Store) ListPrefix(ctx context.Context, prefix string) ([]Pair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`,
		prefix, prefix+"\xff")
	if err != nil {
		return nil, errors.Wrap(err, "kv list")
	}
	defer rows.Close()

	var out []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, errors.Wrap(err, "kv scan")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "kv rows")
}

// RemovePrefix deletes every key under prefix. Used by explicit queue clear.
func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key >= ? AND key < ?`, prefix, prefix+"\xff")
	return errors.Wrap(err, "kv remove prefix")
}
