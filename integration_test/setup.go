//go:build integration

package integration_test

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/scopehal/triggersync/store/sqlstore"
)

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupTables creates the layout tables using the default configuration.
func setupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	migrationSQL, err := sqlstore.MigrationUp(sqlstore.Postgres, sqlstore.DefaultTableConfig())
	if err != nil {
		t.Fatalf("failed to build migration: %v", err)
	}
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
}

// cleanupTables empties the layout tables.
// Errors are logged but don't fail the test.
func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	config := sqlstore.DefaultTableConfig()
	for _, table := range []string{config.MembersTable, config.GroupsTable} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
}

// teardownTables drops the layout tables.
// Errors are logged but don't fail the test.
func teardownTables(t *testing.T, db *sql.DB) {
	t.Helper()

	migrationSQL, err := sqlstore.MigrationDown(sqlstore.Postgres, sqlstore.DefaultTableConfig())
	if err != nil {
		t.Logf("warning: failed to build rollback: %v", err)
		return
	}
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Logf("warning: failed to drop tables: %v", err)
	}
}

// setupTestEnvironment prepares clean tables and returns a store on them.
func setupTestEnvironment(t *testing.T) *sqlstore.Store {
	t.Helper()

	db := getTestDB(t)
	setupTables(t, db)
	cleanupTables(t, db)

	t.Cleanup(func() {
		teardownTables(t, db)
		_ = db.Close()
	})

	return sqlstore.New(db, sqlstore.Postgres)
}
