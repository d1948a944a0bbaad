// Package meta is the daemon-owned durable metadata store, one sqlite
// database per base dir. It records a connection log entry every time a
// session reaches the connected state.
package meta

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection for wamux.db.
type DB struct {
	*sql.DB
}

// Open creates a new sqlite connection with WAL mode and busy timeout.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
