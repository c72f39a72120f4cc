package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readGenerated(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	return string(content)
}

func TestGeneratePostgres(t *testing.T) {
	config := Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "test_migration.sql",
		GroupsTable:    "groups",
		MembersTable:   "members",
	}

	if err := GeneratePostgres(&config); err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	sql := readGenerated(t, filepath.Join(config.OutputFolder, config.OutputFilename))

	required := []string{
		"-- Database: PostgreSQL",
		`CREATE TABLE IF NOT EXISTS "groups"`,
		"primary_instrument TEXT NOT NULL DEFAULT ''",
		"is_default BOOLEAN NOT NULL DEFAULT FALSE",
		"updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		"PRIMARY KEY (session, id)",
		"CREATE INDEX IF NOT EXISTS idx_groups_position",
		`CREATE TABLE IF NOT EXISTS "members"`,
		"CHECK (role IN ('secondary', 'filter'))",
		"PRIMARY KEY (session, group_id, role, position)",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateMySQL(t *testing.T) {
	config := Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "test_migration.sql",
		GroupsTable:    "groups",
		MembersTable:   "members",
	}

	if err := GenerateMySQL(&config); err != nil {
		t.Fatalf("GenerateMySQL failed: %v", err)
	}

	sql := readGenerated(t, filepath.Join(config.OutputFolder, config.OutputFilename))

	required := []string{
		"-- Database: MySQL/MariaDB",
		"CREATE TABLE IF NOT EXISTS `groups`",
		"CREATE TABLE IF NOT EXISTS `members`",
		"role ENUM('secondary', 'filter') NOT NULL",
		"INDEX idx_groups_position (session, position)",
		"ENGINE=InnoDB",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateSQLite(t *testing.T) {
	config := Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "test_migration.sql",
		GroupsTable:    "groups",
		MembersTable:   "members",
	}

	if err := GenerateSQLite(&config); err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}

	sql := readGenerated(t, filepath.Join(config.OutputFolder, config.OutputFilename))

	required := []string{
		"-- Database: SQLite",
		`CREATE TABLE IF NOT EXISTS "groups"`,
		"is_default INTEGER NOT NULL DEFAULT 0",
		"updated_at TEXT NOT NULL DEFAULT (datetime('now'))",
		`CREATE TABLE IF NOT EXISTS "members"`,
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
	if strings.Contains(sql, "ENGINE=InnoDB") {
		t.Error("SQLite migration should not contain MySQL table options")
	}
}

func TestGenerateDown(t *testing.T) {
	config := DefaultConfig()
	config.OutputFolder = t.TempDir()
	config.OutputFilename = "001_layout.sql"
	config.Down = true

	if err := GeneratePostgres(&config); err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	downPath := filepath.Join(config.OutputFolder, "001_layout.down.sql")
	sql := readGenerated(t, downPath)

	members := strings.Index(sql, `DROP TABLE IF EXISTS "triggersync_group_members"`)
	groups := strings.Index(sql, `DROP TABLE IF EXISTS "triggersync_groups"`)
	if members < 0 || groups < 0 {
		t.Fatalf("rollback missing drop statements:\n%s", sql)
	}
	if members > groups {
		t.Error("members table should be dropped before groups table")
	}
}

func TestGenerateWithoutDown(t *testing.T) {
	config := DefaultConfig()
	config.OutputFolder = t.TempDir()
	config.OutputFilename = "001_layout.sql"

	if err := GenerateSQLite(&config); err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(config.OutputFolder, "001_layout.down.sql")); !os.IsNotExist(err) {
		t.Errorf("expected no rollback file, got err=%v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.OutputFolder != "migrations" {
		t.Errorf("Expected OutputFolder 'migrations', got '%s'", config.OutputFolder)
	}
	if config.GroupsTable != "triggersync_groups" {
		t.Errorf("Expected GroupsTable 'triggersync_groups', got '%s'", config.GroupsTable)
	}
	if config.MembersTable != "triggersync_group_members" {
		t.Errorf("Expected MembersTable 'triggersync_group_members', got '%s'", config.MembersTable)
	}
	if !strings.HasSuffix(config.OutputFilename, "_init_triggersync_layout.sql") {
		t.Errorf("Unexpected OutputFilename '%s'", config.OutputFilename)
	}
}

func TestGenerateCreatesOutputFolder(t *testing.T) {
	config := DefaultConfig()
	config.OutputFolder = filepath.Join(t.TempDir(), "nested", "migrations")
	config.OutputFilename = "test.sql"

	if err := GenerateMySQL(&config); err != nil {
		t.Fatalf("GenerateMySQL failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(config.OutputFolder, config.OutputFilename)); err != nil {
		t.Errorf("migration file not created: %v", err)
	}
}

func TestGenerateRejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "injection in groups table",
			config: Config{GroupsTable: "groups; DROP TABLE users", MembersTable: "members"},
		},
		{
			name:   "empty members table",
			config: Config{GroupsTable: "groups", MembersTable: ""},
		},
		{
			name:   "leading digit",
			config: Config{GroupsTable: "1groups", MembersTable: "members"},
		},
	}

	generators := map[string]func(*Config) error{
		"postgres": GeneratePostgres,
		"mysql":    GenerateMySQL,
		"sqlite":   GenerateSQLite,
	}

	for _, tt := range tests {
		for adapter, generate := range generators {
			t.Run(tt.name+"/"+adapter, func(t *testing.T) {
				config := tt.config
				config.OutputFolder = t.TempDir()
				config.OutputFilename = "test.sql"

				err := generate(&config)
				if err == nil {
					t.Fatal("expected error for unsafe identifier")
				}
				if !strings.Contains(err.Error(), "invalid configuration") {
					t.Errorf("unexpected error: %v", err)
				}
				if _, statErr := os.Stat(filepath.Join(config.OutputFolder, config.OutputFilename)); !os.IsNotExist(statErr) {
					t.Error("no file should be written for an invalid configuration")
				}
			})
		}
	}
}

func TestDownPath(t *testing.T) {
	tests := map[string]string{
		"migrations/001_init.sql": "migrations/001_init.down.sql",
		"init":                    "init.down",
	}
	for in, want := range tests {
		if got := DownPath(in); got != want {
			t.Errorf("DownPath(%q) = %q, want %q", in, got, want)
		}
	}
}
