// Package config loads the YAML configuration of the scopesync command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/scopehal/triggersync"
	"github.com/scopehal/triggersync/instrument"
	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration file.
type Config struct {
	// Session names the stored layout (default: "default").
	Session triggersync.SessionName `yaml:"session"`

	// PollInterval is how often active groups are polled (default: 10ms).
	PollInterval time.Duration `yaml:"poll_interval"`

	// TriggerTimeout stops groups that do not trigger in time (default: disabled).
	TriggerTimeout time.Duration `yaml:"trigger_timeout"`

	// Trigger is the trigger type used to start the default groups (default: normal).
	Trigger triggersync.TriggerType `yaml:"trigger"`

	// Acquisitions stops the command after this many downloads (default: 0, run until signalled).
	Acquisitions uint64 `yaml:"acquisitions"`

	// LogLevel is the minimum level logged (default: info).
	LogLevel string `yaml:"log_level"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`

	Store       StoreConfig               `yaml:"store"`
	Instruments []InstrumentConfig        `yaml:"instruments"`
	Filters     []string                  `yaml:"filters"`
	Groups      []triggersync.GroupRecord `yaml:"groups"`
}

// StoreConfig selects where the group layout is persisted.
type StoreConfig struct {
	// Backend is one of memory, yaml, postgres, mysql or sqlite (default: memory).
	Backend string `yaml:"backend"`

	// DSN is the data source name for SQL backends.
	DSN string `yaml:"dsn"`

	// Dir is the layout directory for the yaml backend (default: layouts).
	Dir string `yaml:"dir"`

	// MySQL builds the DSN for the mysql backend when DSN is empty.
	MySQL *MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds structured MySQL connection settings.
type MySQLConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Net      string `yaml:"net"`
	Addr     string `yaml:"addr"`
	DBName   string `yaml:"dbname"`
}

// DSN formats the settings with the driver's own DSN builder.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = c.Net
	if cfg.Net == "" {
		cfg.Net = "tcp"
	}
	cfg.Addr = c.Addr
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// InstrumentConfig describes one simulated instrument.
type InstrumentConfig struct {
	Name              string        `yaml:"name"`
	Channels          []string      `yaml:"channels"`
	Depth             int           `yaml:"depth"`
	SampleInterval    time.Duration `yaml:"sample_interval"`
	Frequency         float64       `yaml:"frequency"`
	TriggerAfterPolls int           `yaml:"trigger_after_polls"`
	FailDownloadEvery int           `yaml:"fail_download_every"`
}

func (c InstrumentConfig) validate() error {
	switch {
	case c.Depth < 0:
		return fmt.Errorf("depth must not be negative (got %d)", c.Depth)
	case c.SampleInterval < 0:
		return fmt.Errorf("sample_interval must not be negative (got %s)", c.SampleInterval)
	case c.Frequency < 0:
		return fmt.Errorf("frequency must not be negative (got %g)", c.Frequency)
	case c.TriggerAfterPolls < 0:
		return fmt.Errorf("trigger_after_polls must not be negative (got %d)", c.TriggerAfterPolls)
	case c.FailDownloadEvery < 0:
		return fmt.Errorf("fail_download_every must not be negative (got %d)", c.FailDownloadEvery)
	}
	return nil
}

// Simulated converts the entry into a simulated instrument configuration.
func (c InstrumentConfig) Simulated() instrument.SimulatedConfig {
	return instrument.SimulatedConfig{
		Name:              c.Name,
		Channels:          c.Channels,
		Depth:             c.Depth,
		SampleInterval:    c.SampleInterval,
		Frequency:         c.Frequency,
		TriggerAfterPolls: c.TriggerAfterPolls,
		FailDownloadEvery: c.FailDownloadEvery,
	}
}

// Default returns the configuration used without a config file: two
// simulated instruments in one group.
func Default() Config {
	cfg := Config{
		Instruments: []InstrumentConfig{
			{Name: "scope1", Channels: []string{"CH1", "CH2"}},
			{Name: "scope2", Channels: []string{"CH1"}, TriggerAfterPolls: 5},
		},
		Filters: []string{"fft"},
		Groups: []triggersync.GroupRecord{
			{ID: "bench", Primary: "scope1", Secondaries: []string{"scope2"}, Filters: []string{"fft"}, Default: true},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration data. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Session == "" {
		c.Session = "default"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.Trigger == "" {
		c.Trigger = triggersync.TriggerTypeNormal
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "layouts"
	}
}

// Validate checks cross-references between instruments, filters and groups.
func (c Config) Validate() error {
	if !c.Trigger.Valid() {
		return &triggersync.InvalidTriggerTypeError{Value: string(c.Trigger)}
	}

	instruments := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Name == "" {
			return errors.New("instrument without a name")
		}
		if instruments[inst.Name] {
			return fmt.Errorf("instrument %q: %w", inst.Name, triggersync.ErrDuplicateInstrument)
		}
		if err := inst.validate(); err != nil {
			return fmt.Errorf("instrument %q: %w", inst.Name, err)
		}
		instruments[inst.Name] = true
	}

	filters := make(map[string]bool, len(c.Filters))
	for _, f := range c.Filters {
		filters[f] = true
	}

	for _, g := range c.Groups {
		names := append([]string{g.Primary}, g.Secondaries...)
		for _, name := range names {
			if name != "" && !instruments[name] {
				return fmt.Errorf("group %s: instrument %q: %w", g.ID, name, triggersync.ErrInstrumentNotFound)
			}
		}
		for _, f := range g.Filters {
			if !filters[f] {
				return fmt.Errorf("group %s: filter %q: %w", g.ID, f, triggersync.ErrFilterNotFound)
			}
		}
	}

	switch c.Store.Backend {
	case "memory", "yaml", "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	return nil
}

// StoreDSN returns the DSN for SQL backends, building it from the structured
// MySQL settings when no DSN is given.
func (c Config) StoreDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	switch c.Store.Backend {
	case "mysql":
		if c.Store.MySQL != nil {
			return c.Store.MySQL.DSN()
		}
	case "sqlite":
		return "file:triggersync.db?cache=shared"
	}
	return ""
}
