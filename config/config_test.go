package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithNoFileOrEnv(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Local", s.Timezone)
	assert.Equal(t, 10*time.Second, s.JobStoreRetryInterval)
	assert.True(t, s.DefaultCoalesce)
	assert.Equal(t, 1, s.DefaultMaxInstances)
	assert.Equal(t, "memory", s.Store.Driver)
	assert.Equal(t, "info", s.Logging.Level)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("CHRONOSCHED_TIMEZONE", "UTC")
	t.Setenv("CHRONOSCHED_STORE_DRIVER", "redis")
	t.Setenv("CHRONOSCHED_DEFAULT_MAX_INSTANCES", "7")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "UTC", s.Timezone)
	assert.Equal(t, "redis", s.Store.Driver)
	assert.Equal(t, 7, s.DefaultMaxInstances)
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "timezone: UTC\nstore:\n  driver: postgres\n  dsn: \"postgres://localhost/db\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "UTC", s.Timezone)
	assert.Equal(t, "postgres", s.Store.Driver)
	assert.Equal(t, "postgres://localhost/db", s.Store.DSN)
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "timezone: UTC\nstore:\n  drivverr: postgres\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path)
	assert.Error(t, err, "a typo'd key must be a construction error, not silently dropped")
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestSchedulerConfig_ResolvesTimezone(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	s.Timezone = "UTC"

	cfg, err := s.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Timezone)
}

func TestSchedulerConfig_RejectsUnknownTimezone(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	s.Timezone = "Not/AZone"

	_, err = s.SchedulerConfig()
	assert.Error(t, err)
}

func TestSchedulerConfig_AppliesOverridesOnlyWhenSet(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	s.Timezone = "UTC"
	s.DefaultMaxInstances = 0 // unset: should fall back to scheduler's own default

	cfg, err := s.SchedulerConfig()
	require.NoError(t, err)
	assert.Greater(t, cfg.DefaultMaxInstances, 0)
}
