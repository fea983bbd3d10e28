package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all compatsuite configuration.
type Config struct {
	Suite    SuiteConfig    `yaml:"suite"`
	Device   DeviceConfig   `yaml:"device"`
	Logcat   LogcatConfig   `yaml:"logcat"`
	Incident IncidentConfig `yaml:"incident"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IncidentConfig configures proto dump verification.
type IncidentConfig struct {
	// DescriptorSet is a FileDescriptorSet (protoc -o) holding the dump schemas.
	DescriptorSet string `yaml:"descriptor_set"`
}

// StoreConfig configures the session store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Suite: SuiteConfig{
			Name:            "CTS",
			Root:            "android-cts",
			Tag:             "cts",
			ABIs:            []string{"arm64-v8a", "armeabi-v7a"},
			LoadConcurrency: 8,
		},
		Device: DeviceConfig{
			ADB:            "adb",
			CommandTimeout: "60s",
			MaxOutputBytes: 16 * 1024 * 1024,
		},
		Logcat: LogcatConfig{
			PollInterval: "1s",
			MarkTimeout:  "3s",
		},
		Store: StoreConfig{
			Path: "results/sessions.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("COMPAT_SUITE_ROOT"); root != "" {
		c.Suite.Root = root
	}
	if serial := os.Getenv("ANDROID_SERIAL"); serial != "" {
		c.Device.Serial = serial
	}
	if adb := os.Getenv("COMPAT_ADB"); adb != "" {
		c.Device.ADB = adb
	}
	if path := os.Getenv("COMPAT_DB"); path != "" {
		c.Store.Path = path
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
