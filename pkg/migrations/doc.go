// Package migrations generates SQL migration files for the trigger group
// layout tables used by store/sqlstore, for PostgreSQL, MySQL/MariaDB and SQLite.
//
// Applications that manage their schema with an external migration tool
// write the file once and apply it themselves instead of calling
// sqlstore.Store.Migrate at startup.
package migrations
