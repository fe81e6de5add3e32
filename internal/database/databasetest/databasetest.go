// Package databasetest provides throwaway databases for package tests.
package databasetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/kinexbt/coin-yaps/internal/database"
)

var seq atomic.Uint64

// Open returns a migrated, isolated in-memory sqlite database that is
// closed when the test ends.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()

	// the single pooled connection keeps the shared in-memory database alive
	dsn := fmt.Sprintf("file:coinyaps_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", seq.Add(1))
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	tb.Cleanup(func() {
		_ = database.Close(db)
	})

	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	return db
}
