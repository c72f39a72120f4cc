package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scopehal/triggersync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
session: lab
poll_interval: 25ms
trigger_timeout: 2s
trigger: auto
acquisitions: 10
log_level: debug
metrics_addr: ":9090"
store:
  backend: mysql
  mysql:
    user: scope
    password: secret
    addr: db:3306
    dbname: lab
instruments:
  - name: scope1
    channels: [CH1, CH2]
    depth: 512
    sample_interval: 1us
  - name: scope2
    trigger_after_polls: 3
filters: [fft]
groups:
  - id: bench
    primary: scope1
    secondaries: [scope2]
    filters: [fft]
    default: true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, triggersync.SessionName("lab"), cfg.Session)
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.TriggerTimeout)
	assert.Equal(t, triggersync.TriggerTypeAuto, cfg.Trigger)
	assert.Equal(t, uint64(10), cfg.Acquisitions)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)

	require.Len(t, cfg.Instruments, 2)
	sim := cfg.Instruments[0].Simulated()
	assert.Equal(t, "scope1", sim.Name)
	assert.Equal(t, []string{"CH1", "CH2"}, sim.Channels)
	assert.Equal(t, 512, sim.Depth)
	assert.Equal(t, time.Microsecond, sim.SampleInterval)
	assert.Equal(t, 3, cfg.Instruments[1].TriggerAfterPolls)

	require.Len(t, cfg.Groups, 1)
	assert.Equal(t, triggersync.GroupRecord{
		ID:          "bench",
		Primary:     "scope1",
		Secondaries: []string{"scope2"},
		Filters:     []string{"fft"},
		Default:     true,
	}, cfg.Groups[0])
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("instruments:\n  - name: scope1\n"))
	require.NoError(t, err)

	assert.Equal(t, triggersync.SessionName("default"), cfg.Session)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.TriggerTimeout)
	assert.Equal(t, triggersync.TriggerTypeNormal, cfg.Trigger)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "layouts", cfg.Store.Dir)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "unknown key",
			data:    "sesion: lab\n",
			wantErr: "failed to parse config",
		},
		{
			name:    "invalid trigger",
			data:    "trigger: sometimes\n",
			wantErr: `invalid trigger type "sometimes"`,
		},
		{
			name:    "unnamed instrument",
			data:    "instruments:\n  - channels: [CH1]\n",
			wantErr: "instrument without a name",
		},
		{
			name:    "duplicate instrument",
			data:    "instruments:\n  - name: a\n  - name: a\n",
			wantErr: "instrument already registered",
		},
		{
			name:    "negative depth",
			data:    "instruments:\n  - name: a\n    depth: -5\n",
			wantErr: `instrument "a": depth must not be negative`,
		},
		{
			name:    "negative trigger_after_polls",
			data:    "instruments:\n  - name: a\n    trigger_after_polls: -1\n",
			wantErr: `instrument "a": trigger_after_polls must not be negative`,
		},
		{
			name:    "negative fail_download_every",
			data:    "instruments:\n  - name: a\n    fail_download_every: -2\n",
			wantErr: "fail_download_every must not be negative",
		},
		{
			name:    "negative sample_interval",
			data:    "instruments:\n  - name: a\n    sample_interval: -1ns\n",
			wantErr: "sample_interval must not be negative",
		},
		{
			name:    "unknown group instrument",
			data:    "groups:\n  - id: g\n    primary: missing\n",
			wantErr: "instrument not found",
		},
		{
			name:    "unknown group filter",
			data:    "instruments:\n  - name: a\ngroups:\n  - id: g\n    primary: a\n    filters: [eye]\n",
			wantErr: "filter not found",
		},
		{
			name:    "unknown backend",
			data:    "store:\n  backend: redis\n",
			wantErr: `unsupported store backend "redis"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_UnknownInstrumentIsSentinel(t *testing.T) {
	_, err := Parse([]byte("groups:\n  - id: g\n    secondaries: [missing]\n"))
	assert.ErrorIs(t, err, triggersync.ErrInstrumentNotFound)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scopesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, triggersync.SessionName("lab"), cfg.Session)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Instruments, 2)
	require.Len(t, cfg.Groups, 1)
	assert.True(t, cfg.Groups[0].Default)
}

func TestMySQLConfig_DSN(t *testing.T) {
	dsn := MySQLConfig{User: "scope", Password: "secret", Addr: "db:3306", DBName: "lab"}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "scope:secret@tcp(db:3306)/lab"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
}

func TestStoreDSN(t *testing.T) {
	cfg := Config{Store: StoreConfig{Backend: "postgres", DSN: "postgres://localhost/lab"}}
	assert.Equal(t, "postgres://localhost/lab", cfg.StoreDSN())

	cfg = Config{Store: StoreConfig{Backend: "mysql", MySQL: &MySQLConfig{User: "u", Addr: "h:1", DBName: "d"}}}
	assert.True(t, strings.HasPrefix(cfg.StoreDSN(), "u@tcp(h:1)/d"))

	cfg = Config{Store: StoreConfig{Backend: "sqlite"}}
	assert.NotEmpty(t, cfg.StoreDSN())

	cfg = Config{Store: StoreConfig{Backend: "postgres"}}
	assert.Empty(t, cfg.StoreDSN())
}
