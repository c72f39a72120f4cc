package sqlstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect selects the SQL flavour spoken by the database.
type Dialect string

const (
	// Postgres is PostgreSQL, used through github.com/lib/pq.
	Postgres Dialect = "postgres"

	// MySQL is MySQL or MariaDB, used through github.com/go-sql-driver/mysql.
	MySQL Dialect = "mysql"

	// SQLite is SQLite 3, used through github.com/mattn/go-sqlite3.
	SQLite Dialect = "sqlite3"
)

// ParseDialect accepts the dialect names used on the command line.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect %q (expected postgres, mysql or sqlite)", s)
}

// DriverName returns the database/sql driver name registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// quote returns name quoted as an identifier.
func (d Dialect) quote(name string) string {
	switch d {
	case Postgres:
		return pq.QuoteIdentifier(name)
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// rebind rewrites ? placeholders into the dialect's placeholder syntax.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// TableConfig configures the table names used by the store.
type TableConfig struct {
	// GroupsTable stores one row per group.
	GroupsTable string

	// MembersTable stores one row per secondary or filter reference.
	MembersTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		GroupsTable:  "triggersync_groups",
		MembersTable: "triggersync_group_members",
	}
}

// Validate checks that both table names are safe identifiers.
func (c TableConfig) Validate() error {
	if err := validateIdentifier(c.GroupsTable, "GroupsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(c.MembersTable, "MembersTable"); err != nil {
		return err
	}
	if c.GroupsTable == c.MembersTable {
		return fmt.Errorf("GroupsTable and MembersTable must differ (both %s)", c.GroupsTable)
	}
	return nil
}
