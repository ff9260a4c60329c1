// Package mapstore keeps statistical maps and match runs in a sqlite
// database. Map planes are stored in their binary plane encoding,
// compressed with zstd.
package mapstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scanmatch/internal/monitoring"
	"github.com/banshee-data/scanmatch/internal/timeutil"
)

var (
	// ErrNotFound reports a map or run id with no row.
	ErrNotFound = errors.New("mapstore: not found")
	// ErrKindMismatch reports loading a map as the wrong kind.
	ErrKindMismatch = errors.New("mapstore: map kind mismatch")
)

// Store is a sqlite-backed map store. It is safe for concurrent use; all
// access goes through a single connection.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
	log   *monitoring.Logger
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// Options configures Open. The zero value uses the real clock and no
// logging.
type Options struct {
	Clock timeutil.Clock
	Log   *monitoring.Logger
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations. ":memory:" gives a private in-memory store.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases and per-connection
	// pragmas consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &Store{
		db:    db,
		clock: timeutil.OrReal(opts.Clock),
		log:   monitoring.OrDiscard(opts.Log),
		enc:   enc,
		dec:   dec,
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database and codecs.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }
