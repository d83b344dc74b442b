// Package store is the Postgres persistence layer for the business data the
// bot acts on: customers, orders, cylinder inventory, safety checks, and the
// audit trail.
package store

import (
	"database/sql"

	// Postgres driver.
	_ "github.com/lib/pq"
)

// Store bundles the domain stores over one database handle.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	if db == nil {
		panic("store: db cannot be nil")
	}
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
