package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore keeps values in an SQLite database, one row per key.
// Several namespaces may share the same database file.
type SQLiteStore struct {
	db         *sql.DB
	namespace  string
	writeMutex *sync.Mutex
}

// NewSQLiteStore opens (or creates) the store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename, namespace string) (*SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS store (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`,
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare sqlite store: %w", err)
		}
	}
	return &SQLiteStore{
		db:         db,
		namespace:  namespace,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM store WHERE namespace = ? AND key = ?", s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO store (namespace, key, value) VALUES (?, ?, ?)", s.namespace, key, value)
	return err
}

func (s *SQLiteStore) Remove(keys ...string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	for _, key := range keys {
		if _, err := s.db.Exec("DELETE FROM store WHERE namespace = ? AND key = ?", s.namespace, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM store WHERE namespace = ? ORDER BY key", s.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
