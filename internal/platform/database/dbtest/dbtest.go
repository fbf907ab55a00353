// Package dbtest opens throwaway in-memory databases with the full schema applied.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"mystore/internal/platform/database"
	"mystore/migrations"
)

// New returns a migrated in-memory database. A single connection is used so
// every query sees the same memory database.
func New(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := database.Migrate(context.Background(), db, migrations.FS); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

// MustExec runs a seed statement and fails the test on error.
func MustExec(t *testing.T, db *sql.DB, query string, args ...any) sql.Result {
	t.Helper()
	res, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("seed %q: %v", query, err)
	}
	return res
}

// SeedTenant inserts a tenant and returns its id.
func SeedTenant(t *testing.T, db *sql.DB, slug string, seatLimit int) int64 {
	t.Helper()
	res := MustExec(t, db, `INSERT INTO tenants (slug, name, seat_limit, created_at, updated_at) VALUES (?, ?, ?, 0, 0)`, slug, slug, seatLimit)
	id, _ := res.LastInsertId()
	return id
}
