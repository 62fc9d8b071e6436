package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AMM_DATA_DIR.
const EnvPrefix = "AMM"

// Store backends.
const (
	StoreFile     = "file"
	StorePebble   = "pebble"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Store        string
	DataDir      string
	PGDSN        string
	Journal      string
	MetricsFile  string
	LogLevel     string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault("store", StoreFile)
	v.SetDefault("data-dir", "./data")
	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Store:        strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DataDir:      v.GetString("data-dir"),
		PGDSN:        v.GetString("pg-dsn"),
		Journal:      v.GetString("journal"),
		MetricsFile:  v.GetString("metrics-file"),
		LogLevel:     v.GetString("log-level"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
	return cfg, cfg.Validate()
}

// Validate checks backend selection and its required settings.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StorePebble:
		if c.DataDir == "" {
			return fmt.Errorf("data-dir is required for the %s store", c.Store)
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (want file, pebble or postgres)", c.Store)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be >= 0")
	}
	return nil
}

// read binds flags and env to v and loads the config file. Without an
// explicit file, ./config.* is read when present.
func read(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
