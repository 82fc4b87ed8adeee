package kvstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Store) initSchema(ctx context.Context) error {
	// journal_mode возвращает строку результата, поэтому через QueryRow.
	var mode string
	if err := s.db.QueryRowContext(ctx, `PRAGMA journal_mode = WAL`).Scan(&mode); err != nil {
		return errors.Wrap(err, "set journal mode")
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA synchronous = FULL`); err != nil {
		return errors.Wrap(err, "set synchronous")
	}

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at INTEGER NOT NULL
)`)
	return errors.Wrap(err, "init schema")
}
