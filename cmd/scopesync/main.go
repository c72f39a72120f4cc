// Command scopesync runs trigger-synchronized acquisitions on a set of
// simulated oscilloscopes.
//
// Usage:
//
//	scopesync -config scopesync.yaml
//
// Without a config file two simulated instruments are chained in one group.
// Flags override the matching config file values:
//
//	scopesync -trigger single -acquisitions 1
//	scopesync -store sqlite -dsn file:layout.db -metrics-addr :9090
//	scopesync -store postgres -dsn postgres://localhost/lab?sslmode=disable
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/internal/config"
	"github.com/scopehal/triggersync/internal/logging"
	"github.com/scopehal/triggersync/metrics"
	"github.com/scopehal/triggersync/session"
	"github.com/scopehal/triggersync/triggergroup"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to a YAML config file")
		backend      = flag.String("store", "", "Layout store: memory, yaml, postgres, mysql or sqlite")
		dsn          = flag.String("dsn", "", "Data source name for SQL stores")
		metricsAddr  = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
		trigger      = flag.String("trigger", "", "Trigger type: single, forced, auto or normal")
		acquisitions = flag.Uint64("acquisitions", 0, "Stop after this many acquisitions (0 runs until interrupted)")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warning or error")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := flagOverrides{
		backend:      *backend,
		dsn:          *dsn,
		metricsAddr:  *metricsAddr,
		trigger:      *trigger,
		acquisitions: *acquisitions,
		logLevel:     *logLevel,
	}
	if err := overrides.apply(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("scopesync", cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "scopesync failed", "error", err)
		os.Exit(1)
	}
}

type flagOverrides struct {
	backend      string
	dsn          string
	metricsAddr  string
	trigger      string
	acquisitions uint64
	logLevel     string
}

func (o flagOverrides) apply(cfg *config.Config) error {
	if o.backend != "" {
		cfg.Store.Backend = o.backend
	}
	if o.dsn != "" {
		cfg.Store.DSN = o.dsn
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.trigger != "" {
		t, err := triggersync.ParseTriggerType(o.trigger)
		if err != nil {
			return err
		}
		cfg.Trigger = t
	}
	if o.acquisitions != 0 {
		cfg.Acquisitions = o.acquisitions
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg.Validate()
}

// run builds the session described by cfg, starts the default groups and
// polls until the acquisition limit is reached or ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error(context.Background(), "failed to close store", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		srv.Start()
		log.Info(ctx, "metrics server started", "addr", cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(shutdownCtx, "failed to stop metrics server", "error", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	counter := &acquisitionCounter{log: log, done: cancel}
	sess := session.New(session.Config{
		Name:           cfg.Session,
		Store:          st,
		PollInterval:   cfg.PollInterval,
		TriggerTimeout: cfg.TriggerTimeout,
		Logger:         log,
		OnAcquisition:  counter.observe,
	})
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.Error(context.Background(), "failed to close session", "error", err)
		}
	}()

	if err := buildLayout(ctx, sess, st, cfg); err != nil {
		return err
	}

	// One-shot groups go quiet after their download, so without an explicit
	// limit stop once each default group has delivered one acquisition.
	limit := cfg.Acquisitions
	if limit == 0 && !cfg.Trigger.FreeRunning() {
		limit = uint64(len(sess.DefaultGroups()))
	}
	counter.limit.Store(limit)

	for _, g := range sess.Groups() {
		log.Info(ctx, "group ready", "group", g.String(), "default", g.IsDefault())
	}

	if err := sess.Start(ctx, cfg.Trigger); err != nil {
		return fmt.Errorf("failed to start acquisition: %w", err)
	}

	err = sess.Run(runCtx)
	log.Info(context.Background(), "session stopped", "acquisitions", sess.Acquisitions())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// acquisitionCounter logs every acquisition and calls done once limit
// acquisitions have completed. A zero limit never calls done.
type acquisitionCounter struct {
	limit     atomic.Uint64
	completed atomic.Uint64
	log       *logging.Logger
	done      context.CancelFunc
}

func (c *acquisitionCounter) observe(ctx context.Context, g *triggergroup.Group, waveforms map[string]triggersync.WaveformSet) {
	count := c.completed.Add(1)
	channels := 0
	for _, ws := range waveforms {
		channels += len(ws.Waveforms)
	}
	c.log.Info(ctx, "acquisition complete",
		"group", g.ID(),
		"instruments", len(waveforms),
		"channels", channels,
		"count", count)
	if limit := c.limit.Load(); limit > 0 && count >= limit {
		c.done()
	}
}
