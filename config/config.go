// Package config loads chronosched's runtime configuration via viper,
// merging an optional file with CHRONOSCHED_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/devkral/asyncz/internal/logging"
	"github.com/devkral/asyncz/scheduler"
)

// Settings is the top-level configuration document. It unmarshals into the
// scheduler's own Config plus the ambient concerns (logging) and the
// connection settings for whichever persistent job store backend is in use.
type Settings struct {
	Timezone                string        `mapstructure:"timezone"`
	JobStoreRetryInterval   time.Duration `mapstructure:"job_store_retry_interval"`
	DefaultMisfireGraceTime time.Duration `mapstructure:"default_misfire_grace_time"`
	DefaultCoalesce         bool          `mapstructure:"default_coalesce"`
	DefaultMaxInstances     int           `mapstructure:"default_max_instances"`

	Logging logging.Config `mapstructure:"logging"`
	Store   StoreSettings  `mapstructure:"store"`
}

// StoreSettings describes how to reach a persistent JobStore backend. Only
// the fields relevant to Driver are consulted; the rest are ignored.
type StoreSettings struct {
	// Driver selects a backend: "memory" (default), "postgres", "mysql",
	// "sql", "mongodb", "redis", "etcd", "zookeeper".
	Driver string `mapstructure:"driver"`

	DSN       string   `mapstructure:"dsn"`
	Endpoints []string `mapstructure:"endpoints"`
	Addrs     []string `mapstructure:"addrs"`
	Database  string   `mapstructure:"database"`
	Table     string   `mapstructure:"table"`
	Path      string   `mapstructure:"path"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

const envPrefix = "CHRONOSCHED"

// Load reads an optional config file at path (YAML, JSON or TOML, detected
// by extension) and layers CHRONOSCHED_-prefixed environment variables on
// top. An empty path skips the file and reads defaults plus environment
// only. Unknown keys anywhere in the file are a construction error: Load
// uses UnmarshalExact so a typo'd key (e.g. "driverr" under store) fails
// fast instead of silently running with defaults.
func Load(path string) (Settings, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.UnmarshalExact(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decoding settings: %w", err)
	}

	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "Local")
	v.SetDefault("job_store_retry_interval", 10*time.Second)
	v.SetDefault("default_misfire_grace_time", 0)
	v.SetDefault("default_coalesce", true)
	v.SetDefault("default_max_instances", 1)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("store.driver", "memory")
}

// SchedulerConfig converts Settings into scheduler.Config, resolving the
// named timezone ("Local", "UTC" or an IANA zone name).
func (s Settings) SchedulerConfig() (scheduler.Config, error) {
	loc, err := resolveLocation(s.Timezone)
	if err != nil {
		return scheduler.Config{}, err
	}

	cfg := scheduler.DefaultConfig()
	cfg.Timezone = loc
	if s.JobStoreRetryInterval > 0 {
		cfg.JobStoreRetryInterval = s.JobStoreRetryInterval
	}
	cfg.DefaultMisfireGraceTime = s.DefaultMisfireGraceTime
	cfg.DefaultCoalesce = s.DefaultCoalesce
	if s.DefaultMaxInstances > 0 {
		cfg.DefaultMaxInstances = s.DefaultMaxInstances
	}
	return cfg, nil
}

func resolveLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	default:
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("config: unknown timezone %q: %w", name, err)
		}
		return loc, nil
	}
}
