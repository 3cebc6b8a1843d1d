// Package modcache persists precompiled modules in SQLite. Each row holds a
// CBOR envelope keyed by the module's logical name; *Store implements
// env.ModuleCache.
package modcache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/phpenv/env"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested module is not cached.
var ErrNotFound = errors.New("modcache: module not found")

// Entry describes one cached module.
type Entry struct {
	Name         string
	SourceDigest []byte
	Size         int64
	StoredAt     time.Time
}

// Store is a SQLite-backed module cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	now  func() time.Time
}

var _ env.ModuleCache = (*Store)(nil)

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps the pragma below in effect for every query.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		source_digest BLOB NOT NULL,
		envelope BLOB NOT NULL,
		stored_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened module cache %s", path)
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the payload cached under name. An entry built from a
// different source digest is reported as a miss; an entry that fails its
// integrity check is ErrCorrupt.
func (s *Store) Get(name string, sourceDigest []byte) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT envelope FROM modules WHERE name = ?", name).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying module: %w", err)
	}

	e, err := UnmarshalEnvelope(blob)
	if err != nil {
		return nil, false, err
	}
	if err := e.Verify(); err != nil {
		return nil, false, err
	}
	if e.Name != name {
		return nil, false, fmt.Errorf("%w: %s stored under %s", ErrCorrupt, e.Name, name)
	}
	if !e.Matches(sourceDigest) {
		log.Debugf("stale module cache entry %s", name)
		return nil, false, nil
	}
	return e.Payload, true, nil
}

// Put stores payload for name, replacing any previous entry.
func (s *Store) Put(name string, sourceDigest, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := NewEnvelope(name, sourceDigest, payload, s.now().Unix())
	data, err := MarshalEnvelope(e)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO modules (name, source_digest, envelope, stored_at) VALUES (?, ?, ?, ?)",
		name, e.SourceDigest, data, e.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("saving module: %w", err)
	}
	return nil
}

// Delete removes the entry for name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM modules WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge removes every entry and returns how many were removed.
func (s *Store) Purge() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM modules")
	if err != nil {
		return 0, fmt.Errorf("purging modules: %w", err)
	}
	n, _ := res.RowsAffected()
	log.Infof("purged %d cached modules from %s", n, s.path)
	return n, nil
}

// List returns every entry ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, source_digest, length(envelope), stored_at FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			storedAt int64
		)
		if err := rows.Scan(&e.Name, &e.SourceDigest, &e.Size, &storedAt); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		e.StoredAt = time.Unix(storedAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
