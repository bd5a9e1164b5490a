package testsupport

import (
	"testing"

	"github.com/goliatone/go-broiler/database"
	"github.com/uptrace/bun"
)

// OpenSQLite opens a private in-memory sqlite database that is closed when
// the test ends. A single connection keeps the database alive between
// queries.
func OpenSQLite(t *testing.T) *bun.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
	}, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
