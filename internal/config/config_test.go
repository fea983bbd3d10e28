package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ParsesYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "compat.yaml")
	content := `
suite:
  name: CTS
  root: /opt/android-cts
  tag: cts
  abis: [x86_64]
device:
  serial: emulator-5554
  command_timeout: 10s
logcat:
  poll_interval: 250ms
logging:
  debug_mode: true
  categories:
    device: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/android-cts", cfg.Suite.Root)
	assert.Equal(t, []string{"x86_64"}, cfg.Suite.ABIs)
	assert.Equal(t, "emulator-5554", cfg.Device.Serial)
	assert.Equal(t, "adb", cfg.Device.ADB, "unset fields keep defaults")
	assert.Equal(t, 10*time.Second, cfg.Device.GetCommandTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.Logcat.GetPollInterval())
	assert.Equal(t, 3*time.Second, cfg.Logcat.GetMarkTimeout())
	assert.True(t, cfg.Logging.IsCategoryEnabled("suite"))
	assert.False(t, cfg.Logging.IsCategoryEnabled("device"))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suite: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "compat.yaml")
	cfg := DefaultConfig()
	cfg.Device.Serial = "abc123"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.Device.Serial)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COMPAT_SUITE_ROOT", "/suite")
	t.Setenv("ANDROID_SERIAL", "R58M")
	t.Setenv("COMPAT_ADB", "/sdk/platform-tools/adb")
	t.Setenv("COMPAT_DB", "/tmp/s.db")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "/suite", cfg.Suite.Root)
	assert.Equal(t, "R58M", cfg.Device.Serial)
	assert.Equal(t, "/sdk/platform-tools/adb", cfg.Device.ADB)
	assert.Equal(t, "/tmp/s.db", cfg.Store.Path)
}

func TestDurationFallbacks(t *testing.T) {
	d := DeviceConfig{CommandTimeout: "soon"}
	assert.Equal(t, 60*time.Second, d.GetCommandTimeout())

	l := LogcatConfig{PollInterval: "-1s"}
	assert.Equal(t, time.Second, l.GetPollInterval())
}

func TestLoggingSettings(t *testing.T) {
	c := LoggingConfig{DebugMode: true, Level: "debug", JSONFormat: true}
	s := c.Settings()
	assert.True(t, s.DebugMode)
	assert.Equal(t, "debug", s.Level)
	assert.True(t, s.JSONFormat)
	assert.False(t, (&LoggingConfig{}).IsCategoryEnabled("boot"))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"COMPAT_SUITE_ROOT", "ANDROID_SERIAL", "COMPAT_ADB", "COMPAT_DB"} {
		t.Setenv(key, "")
	}
}
