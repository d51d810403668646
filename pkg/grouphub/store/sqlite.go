package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// NewSQLiteStore opens a SQLite subscription store.
// The path should be a file path (e.g., "./grouphub.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open(SQLite.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each ":memory:" connection is its own database, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(context.Background(), db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
