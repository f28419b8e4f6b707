package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, int64(256*1024), cfg.Budget.MaxBytes)
	assert.Equal(t, DriftWarn, cfg.LockDrift)
}

func TestSaveThenLoad_RoundTripsFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Budget.MaxBytes = 123456
	cfg.LockDrift = DriftStrict

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), loaded.Budget.MaxBytes)
	assert.Equal(t, DriftStrict, loaded.LockDrift)
}

func TestApplyEnvOverrides_MaxBytesAndLockDrift(t *testing.T) {
	t.Setenv("XCHECKER_MAX_BYTES", "999")
	t.Setenv("XCHECKER_LOCK_DRIFT", "strict")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, int64(999), cfg.Budget.MaxBytes)
	assert.Equal(t, DriftStrict, cfg.LockDrift)
}

func TestApplyEnvOverrides_InvalidLockDriftIsIgnored(t *testing.T) {
	t.Setenv("XCHECKER_LOCK_DRIFT", "not-a-real-mode")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent2.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriftWarn, cfg.LockDrift)
}

func TestPhaseTimeoutDuration_DefaultsOnEmptyOrInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PhaseTimeout = ""
	assert.Equal(t, 10*time.Minute, cfg.PhaseTimeoutDuration())

	cfg.PhaseTimeout = "not-a-duration"
	assert.Equal(t, 10*time.Minute, cfg.PhaseTimeoutDuration())

	cfg.PhaseTimeout = "45s"
	assert.Equal(t, 45*time.Second, cfg.PhaseTimeoutDuration())
}

func TestLockTTLDuration_DefaultsOnZeroOrNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockTTL = "0s"
	assert.Equal(t, 30*time.Minute, cfg.LockTTLDuration())
}

func TestLoad_MalformedYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget: [this is not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
