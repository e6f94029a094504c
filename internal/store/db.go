// Package store keeps a SQLite catalogue of extraction runs and their results.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/demsinks/internal/monitoring"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("store: not found")

// DB wraps the catalogue connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the SQLite catalogue at path. Call
// MigrateUp before first use.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	monitoring.Debugf("[store] opened %s", path)
	return &DB{db}, nil
}

// dsn applies per-connection pragmas so every pooled connection enforces
// foreign keys.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
