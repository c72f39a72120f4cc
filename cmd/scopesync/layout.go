package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/scopehal/triggersync/filter"
	"github.com/scopehal/triggersync/instrument"
	"github.com/scopehal/triggersync/internal/config"
	"github.com/scopehal/triggersync/session"
	"github.com/scopehal/triggersync/store"
	"github.com/scopehal/triggersync/store/memory"
	"github.com/scopehal/triggersync/store/sqlstore"
	"github.com/scopehal/triggersync/store/yamlfile"
)

func noopClose() error { return nil }

// openStore returns the layout store selected by cfg and a function that
// releases it. SQL stores are migrated before use.
func openStore(ctx context.Context, cfg config.Config) (store.GroupStore, func() error, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), noopClose, nil

	case "yaml":
		s, err := yamlfile.New(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, noopClose, nil
	}

	d, err := sqlstore.ParseDialect(cfg.Store.Backend)
	if err != nil {
		return nil, nil, err
	}
	dsn := cfg.StoreDSN()
	if dsn == "" {
		return nil, nil, fmt.Errorf("store backend %s requires a dsn", cfg.Store.Backend)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", d, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s store: %w", d, err)
	}
	if d == sqlstore.SQLite {
		db.SetMaxOpenConns(1)
	}

	s := sqlstore.New(db, d)
	if err := s.Migrate(ctx, sqlstore.DefaultTableConfig()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, db.Close, nil
}

// buildLayout registers the configured instruments and filters, then
// restores the saved group layout. When the store holds no layout for the
// session the configured groups are saved first; with no configured groups
// either, every instrument is chained behind the first one.
func buildLayout(ctx context.Context, sess *session.Session, st store.GroupStore, cfg config.Config) error {
	for _, ic := range cfg.Instruments {
		if _, err := sess.AddInstrument(instrument.NewSimulated(ic.Simulated())); err != nil {
			return err
		}
	}
	for _, name := range cfg.Filters {
		sess.AddFilter(filter.NewGate(name))
	}

	saved, err := st.ListGroups(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to read saved layout: %w", err)
	}
	if len(saved) == 0 && len(cfg.Groups) > 0 {
		if err := st.SaveGroups(ctx, cfg.Session, cfg.Groups); err != nil {
			return fmt.Errorf("failed to save configured layout: %w", err)
		}
	}

	if err := sess.Load(ctx); err != nil {
		return err
	}
	if len(sess.Groups()) > 0 {
		return nil
	}
	return chainAll(ctx, sess, cfg.Filters)
}

func chainAll(ctx context.Context, sess *session.Session, filters []string) error {
	handles := sess.Instruments()
	if len(handles) == 0 {
		return nil
	}

	g, err := sess.NewGroup(handles[0])
	if err != nil {
		return err
	}
	for _, h := range handles[1:] {
		if err := g.AddSecondary(ctx, h); err != nil {
			return err
		}
	}
	for _, name := range filters {
		f, err := sess.Filter(name)
		if err != nil {
			return err
		}
		g.AddFilter(f)
	}
	return sess.Save(ctx)
}
