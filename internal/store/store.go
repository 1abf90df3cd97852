// Package store is the SQLite backing store of an open container.
//
// One [Store] wraps one data.sqlite file inside a session's working
// directory. It exposes the annotation and metadata tables; every public
// method relies on SQLite's single-statement atomicity and does not open
// multi-statement transactions of its own (schema init aside).
//
// Errors are [*rrerr.Error] values: backing-store failures are
// [rrerr.KindStore], bad caller input is [rrerr.KindValidation], and rows that
// cannot be decoded are [rrerr.KindInvalidRecordEncoding].
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
)

// FileName is the name of the backing store file inside a container.
const FileName = "data.sqlite"

// Store holds the SQLite handle for one container session.
//
// A Store is not meant to be shared across sessions; the session manager
// serializes all access to it.
type Store struct {
	path string
	sql  *sql.DB
	now  func() time.Time
}

// Options configures Open. The zero value is ready to use.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Open opens (creating if needed) the SQLite file at path, applies pragmas,
// and initializes the schema. Existing data is preserved.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("open store: context is nil")
	}

	db, err := openSqlite(ctx, path)
	if err != nil {
		return nil, rrerr.New(rrerr.KindStore, "open store", path, err)
	}

	err = initSchema(ctx, db)
	if err != nil {
		_ = db.Close()

		if errors.Is(err, errSchemaTooNew) {
			return nil, rrerr.New(rrerr.KindUnsupportedFormat, "open store", path, err)
		}

		return nil, rrerr.New(rrerr.KindStore, "open store", path, err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{path: path, sql: db, now: now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Checkpoint merges the write-ahead log into the main database file and
// truncates the log, so that copying the main file captures every committed
// change.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s == nil || s.sql == nil {
		return rrerr.New(rrerr.KindStore, "checkpoint", "", errors.New("store is not open"))
	}

	var busy, logFrames, checkpointed int

	err := s.sql.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return rrerr.New(rrerr.KindStore, "checkpoint", s.path, fmt.Errorf("wal checkpoint: %w", err))
	}

	if busy != 0 {
		return rrerr.New(rrerr.KindStore, "checkpoint", s.path,
			fmt.Errorf("wal checkpoint blocked (%d of %d frames checkpointed)", checkpointed, logFrames))
	}

	return nil
}

// Close releases the SQLite handle opened by Open. Safe to call twice.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}

	err := s.sql.Close()
	s.sql = nil

	if err != nil {
		return rrerr.New(rrerr.KindStore, "close store", s.path, err)
	}

	return nil
}

func (s *Store) db(op string) (*sql.DB, error) {
	if s == nil || s.sql == nil {
		return nil, rrerr.New(rrerr.KindStore, op, "", errors.New("store is not open"))
	}

	return s.sql, nil
}

// newAnnotationID generates time-ordered IDs; uniqueness is all callers rely on.
func newAnnotationID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuidv7: %w", err)
	}

	return id.String(), nil
}
