// Package config loads client settings from a config file, a .env file and
// SCOTTYSTACK_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/scottscharl/scottystack/internal/scheduler"
	"github.com/scottscharl/scottystack/internal/sessionstore"
	"github.com/spf13/viper"
)

const EnvPrefix = "SCOTTYSTACK"

// DefaultBaseURL is where the local backend listens.
const DefaultBaseURL = "http://127.0.0.1:8090"

type Config struct {
	BaseURL        string          `mapstructure:"base_url"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	Scheduler      SchedulerConfig `mapstructure:"scheduler"`
	Store          StoreConfig     `mapstructure:"store"`
	Log            LogConfig       `mapstructure:"log"`
	DevServer      DevServerConfig `mapstructure:"devserver"`
}

type SchedulerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RefreshWindow time.Duration `mapstructure:"refresh_window"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisKey      string `mapstructure:"redis_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type DevServerConfig struct {
	Addr     string        `mapstructure:"addr"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SessionStore converts the store section for sessionstore.Open.
func (c StoreConfig) SessionStore() sessionstore.Options {
	return sessionstore.Options{
		Driver:        c.Driver,
		Path:          c.Path,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisKey:      c.RedisKey,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("scheduler.poll_interval", scheduler.DefaultPollInterval)
	v.SetDefault("scheduler.refresh_window", scheduler.DefaultRefreshWindow)
	v.SetDefault("store.driver", sessionstore.DriverFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_key", sessionstore.DefaultRedisKey)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("devserver.addr", "127.0.0.1:8090")
	v.SetDefault("devserver.secret", "")
	v.SetDefault("devserver.token_ttl", time.Hour)
}

// Load reads the optional config file at path (any format viper knows) and
// then the given .env files, defaulting to ./.env. Missing files are
// skipped. Environment variables win over both.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the environment
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the installer writes the backend address as VITE_PB_URL
	if err := v.BindEnv("base_url", EnvPrefix+"_BASE_URL", "VITE_PB_URL", "PB_URL"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail later and further
// from their cause.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: want an http or https URL", c.BaseURL)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}

	if c.Scheduler.PollInterval <= 0 || c.Scheduler.PollInterval >= c.Scheduler.RefreshWindow {
		return fmt.Errorf("scheduler.poll_interval %s, scheduler.refresh_window %s: %w",
			c.Scheduler.PollInterval, c.Scheduler.RefreshWindow, scheduler.ErrInvalidTiming)
	}

	if !slices.Contains(sessionstore.Drivers, c.Store.Driver) {
		return fmt.Errorf("unknown store.driver %q, want one of %s",
			c.Store.Driver, strings.Join(sessionstore.Drivers, ", "))
	}
	if c.Store.Driver == sessionstore.DriverSQLite && c.Store.Path == "" {
		return errors.New("store.path is required for the sqlite driver")
	}
	return nil
}
