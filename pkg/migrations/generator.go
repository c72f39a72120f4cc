package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scopehal/triggersync/store/sqlstore"
)

// Config configures migration generation for the layout tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// GroupsTable is the name of the table holding one row per trigger group
	GroupsTable string

	// MembersTable is the name of the table holding secondaries and filters
	MembersTable string

	// Down also writes a rollback file next to the migration, suffixed ".down.sql"
	Down bool
}

// DefaultConfig returns the default configuration for layout migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	tables := sqlstore.DefaultTableConfig()
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_triggersync_layout.sql", timestamp),
		GroupsTable:    tables.GroupsTable,
		MembersTable:   tables.MembersTable,
	}
}

func (c *Config) tables() sqlstore.TableConfig {
	return sqlstore.TableConfig{GroupsTable: c.GroupsTable, MembersTable: c.MembersTable}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return generate(config, sqlstore.Postgres, "PostgreSQL")
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return generate(config, sqlstore.MySQL, "MySQL/MariaDB")
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return generate(config, sqlstore.SQLite, "SQLite")
}

func generate(config *Config, d sqlstore.Dialect, database string) error {
	if config.OutputFilename == "" {
		return fmt.Errorf("invalid configuration: OutputFilename cannot be empty")
	}

	up, err := sqlstore.MigrationUp(d, config.tables())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(header(database)+up), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	if !config.Down {
		return nil
	}

	down, err := sqlstore.MigrationDown(d, config.tables())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.WriteFile(DownPath(outputPath), []byte(header(database)+down), 0o600); err != nil {
		return fmt.Errorf("failed to write rollback file: %w", err)
	}
	return nil
}

// DownPath returns the rollback file path for a migration file path.
func DownPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + ".down" + ext
}

func header(database string) string {
	return fmt.Sprintf(`-- Trigger Group Layout Migration
-- Generated: %s
-- Database: %s

`, time.Now().Format(time.RFC3339), database)
}
