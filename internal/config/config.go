// Package config loads roulette settings from defaults, an optional config
// file, ROULETTE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ROULETTE_DB or
// ROULETTE_DISCORD_TOKEN.
const EnvPrefix = "ROULETTE"

// Config keys.
const (
	KeyDB                 = "db"
	KeyPoolsDir           = "pools.dir"
	KeyPoolsWatch         = "pools.watch"
	KeyPoolsDebounce      = "pools.debounce"
	KeyDrawLockTimeout    = "draw.lock_timeout"
	KeyDrawStorageTimeout = "draw.storage_timeout"
	KeyHTTPAddr           = "http.addr"
	KeyHTTPCORSOrigins    = "http.cors_origins"
	KeyDiscordToken       = "discord.token"
	KeyDiscordAppID       = "discord.app_id"
	KeyDiscordGuildID     = "discord.guild_id"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
)

// Config is the resolved application configuration.
type Config struct {
	DB      string        `mapstructure:"db"`
	Pools   PoolsConfig   `mapstructure:"pools"`
	Draw    DrawConfig    `mapstructure:"draw"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Discord DiscordConfig `mapstructure:"discord"`
	Log     LogConfig     `mapstructure:"log"`
}

// PoolsConfig controls where pool definitions come from and whether they are watched.
type PoolsConfig struct {
	// Dir holds pool definition files. Empty disables file sync.
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DrawConfig bounds the waits of a single draw.
type DrawConfig struct {
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout"`
}

// HTTPConfig configures the HTTP API front end.
type HTTPConfig struct {
	// Addr is the listen address. Empty disables the HTTP API.
	Addr string `mapstructure:"addr"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DiscordConfig configures the Discord gateway front end.
type DiscordConfig struct {
	// Token is the bot token. Empty disables the Discord gateway.
	Token   string `mapstructure:"token"`
	AppID   string `mapstructure:"app_id"`
	GuildID string `mapstructure:"guild_id"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDB, "roulette.db")
	v.SetDefault(KeyPoolsDir, "")
	v.SetDefault(KeyPoolsWatch, false)
	v.SetDefault(KeyPoolsDebounce, 200*time.Millisecond)
	v.SetDefault(KeyDrawLockTimeout, 2*time.Second)
	v.SetDefault(KeyDrawStorageTimeout, 5*time.Second)
	v.SetDefault(KeyHTTPAddr, "")
	v.SetDefault(KeyHTTPCORSOrigins, []string{})
	v.SetDefault(KeyDiscordToken, "")
	v.SetDefault(KeyDiscordAppID, "")
	v.SetDefault(KeyDiscordGuildID, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (any format viper understands) into v and returns the
// validated configuration. With an empty file, roulette.{yaml,toml,json} is
// looked up in the working directory and its absence is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("roulette")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db: path is required"))
	}
	if c.Draw.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("draw.lock_timeout: must be positive, got %s", c.Draw.LockTimeout))
	}
	if c.Draw.StorageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("draw.storage_timeout: must be positive, got %s", c.Draw.StorageTimeout))
	}
	if c.Pools.Watch && c.Pools.Dir == "" {
		errs = append(errs, errors.New("pools.watch: requires pools.dir"))
	}
	if c.Discord.Token != "" && c.Discord.AppID == "" {
		errs = append(errs, errors.New("discord.app_id: required when discord.token is set"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: want text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// NewLogger builds the slog logger described by c, writing to w.
// verbose forces debug level.
func (c LogConfig) NewLogger(w io.Writer, verbose bool) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
