package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
)

// GetMetadata returns the value stored under key. found is false if the key
// is absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	const op = "get metadata"

	db, err := s.db(op)
	if err != nil {
		return "", false, err
	}

	var value string

	err = db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, rrerr.New(rrerr.KindStore, op, key, fmt.Errorf("query: %w", err))
	}

	return value, true, nil
}

// SetMetadata inserts or replaces the value for key.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	const op = "set metadata"

	db, err := s.db(op)
	if err != nil {
		return err
	}

	if key == "" {
		return rrerr.New(rrerr.KindValidation, op, "", errors.New("metadata key is empty"))
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return rrerr.New(rrerr.KindStore, op, key, fmt.Errorf("upsert: %w", err))
	}

	return nil
}

// ListMetadata returns every entry sorted by key.
func (s *Store) ListMetadata(ctx context.Context) ([]MetadataEntry, error) {
	const op = "list metadata"

	db, err := s.db(op)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT key, value FROM metadata ORDER BY key ASC")
	if err != nil {
		return nil, rrerr.New(rrerr.KindStore, op, "", fmt.Errorf("query: %w", err))
	}

	defer func() { _ = rows.Close() }()

	entries := make([]MetadataEntry, 0)

	for rows.Next() {
		var e MetadataEntry

		err = rows.Scan(&e.Key, &e.Value)
		if err != nil {
			return nil, rrerr.New(rrerr.KindStore, op, "", fmt.Errorf("scan: %w", err))
		}

		entries = append(entries, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, rrerr.New(rrerr.KindStore, op, "", fmt.Errorf("rows: %w", err))
	}

	return entries, nil
}
