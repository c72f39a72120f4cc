package sqlstore

import (
	"fmt"
	"strings"
)

// MigrationUp returns the statements that create the store tables.
// Statements are separated by ";\n" and are safe to run more than once.
func MigrationUp(d Dialect, cfg TableConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid table configuration: %w", err)
	}

	groups := d.quote(cfg.GroupsTable)
	members := d.quote(cfg.MembersTable)

	switch d {
	case Postgres:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    session TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    primary_instrument TEXT NOT NULL DEFAULT '',
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session, id)
);
CREATE INDEX IF NOT EXISTS idx_%s_position ON %s (session, position);
CREATE TABLE IF NOT EXISTS %s (
    session TEXT NOT NULL,
    group_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('secondary', 'filter')),
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (session, group_id, role, position)
);
`, groups, cfg.GroupsTable, groups, members), nil

	case MySQL:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    session VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    position INT NOT NULL,
    primary_instrument VARCHAR(255) NOT NULL DEFAULT '',
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
    PRIMARY KEY (session, id),
    INDEX idx_%s_position (session, position)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
CREATE TABLE IF NOT EXISTS %s (
    session VARCHAR(255) NOT NULL,
    group_id VARCHAR(255) NOT NULL,
    role ENUM('secondary', 'filter') NOT NULL,
    position INT NOT NULL,
    name VARCHAR(255) NOT NULL,
    PRIMARY KEY (session, group_id, role, position)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`, groups, cfg.GroupsTable, members), nil

	case SQLite:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    session TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    primary_instrument TEXT NOT NULL DEFAULT '',
    is_default INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (session, id)
);
CREATE INDEX IF NOT EXISTS idx_%s_position ON %s (session, position);
CREATE TABLE IF NOT EXISTS %s (
    session TEXT NOT NULL,
    group_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('secondary', 'filter')),
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (session, group_id, role, position)
);
`, groups, cfg.GroupsTable, groups, members), nil
	}

	return "", fmt.Errorf("unsupported dialect %q", d)
}

// MigrationDown returns the statements that drop the store tables.
func MigrationDown(d Dialect, cfg TableConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid table configuration: %w", err)
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\nDROP TABLE IF EXISTS %s;\n",
		d.quote(cfg.MembersTable), d.quote(cfg.GroupsTable)), nil
}

// statements splits a migration into individual statements.
func statements(migration string) []string {
	var out []string
	for _, stmt := range strings.Split(migration, ";\n") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
