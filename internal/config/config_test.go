package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "roulette.db", cfg.DB)
	assert.Equal(t, 2*time.Second, cfg.Draw.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.Draw.StorageTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Pools.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.HTTP.Addr)
}

func TestLoad_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roulette.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
db = "/var/lib/roulette/history.db"

[pools]
dir = "/srv/pools"
watch = true

[draw]
lock_timeout = "750ms"

[discord]
token = "secret"
app_id = "1234"
`), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/roulette/history.db", cfg.DB)
	assert.Equal(t, "/srv/pools", cfg.Pools.Dir)
	assert.True(t, cfg.Pools.Watch)
	assert.Equal(t, 750*time.Millisecond, cfg.Draw.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.Draw.StorageTimeout)
	assert.Equal(t, "secret", cfg.Discord.Token)
}

func TestLoad_DiscoversYAMLInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roulette.yaml"), []byte("http:\n  addr: \":9000\"\n  cors_origins:\n    - https://example.com\n"), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://example.com"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roulette.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: from-file.db\nlog:\n  level: warn\n"), 0o644))
	t.Setenv("ROULETTE_DB", "from-env.db")
	t.Setenv("ROULETTE_DRAW_STORAGE_TIMEOUT", "9s")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.DB)
	assert.Equal(t, 9*time.Second, cfg.Draw.StorageTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DB:   "x.db",
			Draw: DrawConfig{LockTimeout: time.Second, StorageTimeout: time.Second},
			Log:  LogConfig{Level: "info", Format: "text"},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no db", func(c *Config) { c.DB = "" }, "db: path is required"},
		{"zero lock timeout", func(c *Config) { c.Draw.LockTimeout = 0 }, "draw.lock_timeout"},
		{"watch without dir", func(c *Config) { c.Pools.Watch = true }, "pools.watch"},
		{"discord without app", func(c *Config) { c.Discord.Token = "t" }, "discord.app_id"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf, false)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "pool", "weapons")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"pool":"weapons"`)

	buf.Reset()
	logger, err = LogConfig{Level: "warn", Format: "text"}.NewLogger(&buf, true)
	require.NoError(t, err)
	logger.Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}
