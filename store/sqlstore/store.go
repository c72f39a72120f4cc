// Package sqlstore is a database/sql implementation of GroupStore for
// PostgreSQL, MySQL and SQLite.
//
// The caller opens the *sql.DB with the matching driver registered, for
// example by blank-importing github.com/lib/pq, github.com/go-sql-driver/mysql
// or github.com/mattn/go-sqlite3.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/store"
)

const (
	roleSecondary = "secondary"
	roleFilter    = "filter"
)

// Store persists group layouts in two tables: one row per group and one row
// per secondary or filter reference.
type Store struct {
	// writeMu serializes delete-then-insert transactions within the process.
	writeMu sync.Mutex

	db           *sql.DB
	dialect      Dialect
	groupsTable  string
	membersTable string
}

// Compile-time check that Store implements GroupStore.
var _ store.GroupStore = (*Store)(nil)

// New creates a store with default table names.
func New(db *sql.DB, d Dialect) *Store {
	s, _ := NewWithConfig(db, d, DefaultTableConfig())
	return s
}

// NewWithConfig creates a store with custom table names.
// Returns an error if a table name is not a safe identifier.
func NewWithConfig(db *sql.DB, d Dialect, cfg TableConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table configuration: %w", err)
	}
	return &Store{
		db:           db,
		dialect:      d,
		groupsTable:  d.quote(cfg.GroupsTable),
		membersTable: d.quote(cfg.MembersTable),
	}, nil
}

// Migrate creates the store tables if they do not exist.
func (s *Store) Migrate(ctx context.Context, cfg TableConfig) error {
	migration, err := MigrationUp(s.dialect, cfg)
	if err != nil {
		return err
	}
	for _, stmt := range statements(migration) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}

// SaveGroups replaces the layout of a session in one transaction.
func (s *Store) SaveGroups(ctx context.Context, session triggersync.SessionName, groups []triggersync.GroupRecord) error {
	if err := store.Validate(groups); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, s.query(`DELETE FROM %[2]s WHERE session = ?`), string(session)); err != nil {
		return fmt.Errorf("failed to clear group members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.query(`DELETE FROM %[1]s WHERE session = ?`), string(session)); err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}

	for i, g := range groups {
		if err := s.insertGroup(ctx, tx, session, i, g); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) insertGroup(ctx context.Context, tx *sql.Tx, session triggersync.SessionName, position int, g triggersync.GroupRecord) error {
	_, err := tx.ExecContext(ctx,
		s.query(`INSERT INTO %[1]s (session, id, position, primary_instrument, is_default) VALUES (?, ?, ?, ?, ?)`),
		string(session), g.ID, position, g.Primary, g.Default)
	if err != nil {
		return fmt.Errorf("failed to insert group %s: %w", g.ID, err)
	}

	insertMember := s.query(`INSERT INTO %[2]s (session, group_id, role, position, name) VALUES (?, ?, ?, ?, ?)`)
	for i, name := range g.Secondaries {
		if _, err := tx.ExecContext(ctx, insertMember, string(session), g.ID, roleSecondary, i, name); err != nil {
			return fmt.Errorf("failed to insert secondary %s of group %s: %w", name, g.ID, err)
		}
	}
	for i, name := range g.Filters {
		if _, err := tx.ExecContext(ctx, insertMember, string(session), g.ID, roleFilter, i, name); err != nil {
			return fmt.Errorf("failed to insert filter %s of group %s: %w", name, g.ID, err)
		}
	}
	return nil
}

// ListGroups returns the layout of a session in saved order.
func (s *Store) ListGroups(ctx context.Context, session triggersync.SessionName) ([]triggersync.GroupRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		s.query(`SELECT id, primary_instrument, is_default FROM %[1]s WHERE session = ? ORDER BY position`),
		string(session))
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []triggersync.GroupRecord{}
	index := make(map[string]int)
	for rows.Next() {
		var g triggersync.GroupRecord
		if err := rows.Scan(&g.ID, &g.Primary, &g.Default); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	err = s.scanMembers(ctx,
		s.query(`SELECT group_id, role, name FROM %[2]s WHERE session = ? ORDER BY group_id, role, position`),
		func(groupID, role, name string) {
			if i, ok := index[groupID]; ok {
				appendMember(&groups[i], role, name)
			}
		},
		string(session))
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup returns one group of a session.
// Returns store.ErrGroupNotFound if the group does not exist.
func (s *Store) GetGroup(ctx context.Context, session triggersync.SessionName, id string) (triggersync.GroupRecord, error) {
	var g triggersync.GroupRecord
	err := s.db.QueryRowContext(ctx,
		s.query(`SELECT id, primary_instrument, is_default FROM %[1]s WHERE session = ? AND id = ?`),
		string(session), id).Scan(&g.ID, &g.Primary, &g.Default)
	if errors.Is(err, sql.ErrNoRows) {
		return triggersync.GroupRecord{}, store.ErrGroupNotFound
	}
	if err != nil {
		return triggersync.GroupRecord{}, fmt.Errorf("failed to get group: %w", err)
	}

	err = s.scanMembers(ctx,
		s.query(`SELECT group_id, role, name FROM %[2]s WHERE session = ? AND group_id = ? ORDER BY role, position`),
		func(_, role, name string) {
			appendMember(&g, role, name)
		},
		string(session), id)
	if err != nil {
		return triggersync.GroupRecord{}, err
	}
	return g, nil
}

// DeleteGroup removes one group of a session.
// Returns store.ErrGroupNotFound if the group does not exist.
func (s *Store) DeleteGroup(ctx context.Context, session triggersync.SessionName, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, s.query(`DELETE FROM %[1]s WHERE session = ? AND id = ?`), string(session), id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrGroupNotFound
	}

	if _, err := tx.ExecContext(ctx, s.query(`DELETE FROM %[2]s WHERE session = ? AND group_id = ?`), string(session), id); err != nil {
		return fmt.Errorf("failed to delete group members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) scanMembers(ctx context.Context, query string, add func(groupID, role, name string), args ...interface{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID, role, name string
		if err := rows.Scan(&groupID, &role, &name); err != nil {
			return fmt.Errorf("failed to scan group member: %w", err)
		}
		add(groupID, role, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating group members: %w", err)
	}
	return nil
}

// query fills in the table names and rewrites placeholders for the dialect.
// %[1]s is the groups table, %[2]s the members table.
func (s *Store) query(format string) string {
	return s.dialect.rebind(fmt.Sprintf(format, s.groupsTable, s.membersTable))
}

func appendMember(g *triggersync.GroupRecord, role, name string) {
	switch role {
	case roleSecondary:
		g.Secondaries = append(g.Secondaries, name)
	case roleFilter:
		g.Filters = append(g.Filters, name)
	}
}
