// Package classstore is a content-addressed cache of raw classfiles backed
// by SQLite. Classfiles are keyed by the SHA-256 of their bytes and indexed
// by class name, so repeated loads of the same class hit the store instead
// of the filesystem.
package classstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var ErrClassNotCached = errors.New("class not in store")

const schema = `
CREATE TABLE IF NOT EXISTS classfiles (
	hash TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS classfiles_name ON classfiles (name);
`

// Store is an open classfile cache.
type Store struct {
	db *sql.DB
}

// Entry describes one stored classfile.
type Entry struct {
	Hash string
	Name string
	Size int
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening class store: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening class store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing class store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a classfile under its content hash and returns the hash.
// Storing identical bytes twice is a no-op.
func (s *Store) Put(name string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO classfiles (hash, name, data) VALUES (?, ?, ?)",
		hash, name, data)
	if err != nil {
		return "", fmt.Errorf("storing class %s: %w", name, err)
	}
	return hash, nil
}

// GetByHash fetches a classfile by content hash.
func (s *Store) GetByHash(hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM classfiles WHERE hash = ?", hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: hash %s", ErrClassNotCached, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching class by hash: %w", err)
	}
	return data, nil
}

// GetByName fetches a classfile by class name. With several versions of
// the same name stored, the most recently inserted wins.
func (s *Store) GetByName(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM classfiles WHERE name = ? ORDER BY rowid DESC LIMIT 1",
		name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrClassNotCached, name)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching class %s: %w", name, err)
	}
	return data, nil
}

// Classes lists everything in the store, ordered by name.
func (s *Store) Classes() ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT hash, name, length(data) FROM classfiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.Name, &e.Size); err != nil {
			return nil, fmt.Errorf("listing classes: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
