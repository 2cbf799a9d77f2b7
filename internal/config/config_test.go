package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, SourceWebcam, cfg.ActiveSource)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.InDelta(t, 0.7, cfg.Threshold(), 1e-6)
	assert.Equal(t, "localhost:8080", cfg.DetectorHost())
}

func TestLoadConfigFile_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))

	assert.Equal(t, uint(24), cfg.GetFPS())
	assert.Equal(t, 640, cfg.GetWidth())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := NewDefaultConfig()
	cfg.SetFPS(10)
	cfg.SetThreshold(0.85)
	cfg.Detector.Host = "detector:9000"
	require.NoError(t, cfg.Save(path))

	got := LoadConfigFile(path)
	assert.Equal(t, uint(10), got.GetFPS())
	assert.InDelta(t, 0.85, got.Threshold(), 1e-6)
	assert.Equal(t, "detector:9000", got.DetectorHost())
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("DETECTOR_HOST", "env-host:1234")
	os.Setenv("POLL_INTERVAL_MS", "250")
	os.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	defer func() {
		os.Unsetenv("DETECTOR_HOST")
		os.Unsetenv("POLL_INTERVAL_MS")
		os.Unsetenv("CONFIDENCE_THRESHOLD")
	}()

	cfg := LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))

	assert.Equal(t, "env-host:1234", cfg.DetectorHost())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.InDelta(t, 0.9, cfg.Threshold(), 1e-6)
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	os.Setenv("POLL_INTERVAL_MS", "not-a-number")
	defer os.Unsetenv("POLL_INTERVAL_MS")

	cfg := LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
}

func TestEnvOverrides_ThresholdOutOfRangeIgnored(t *testing.T) {
	for _, v := range []string{"1.5", "1", "0", "-0.2"} {
		os.Setenv("CONFIDENCE_THRESHOLD", v)

		cfg := LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))
		assert.InDelta(t, 0.7, cfg.Threshold(), 1e-6, "value %q must be ignored", v)
	}
	os.Unsetenv("CONFIDENCE_THRESHOLD")
}
