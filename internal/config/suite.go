package config

import "time"

// SuiteConfig describes the suite installation being driven.
type SuiteConfig struct {
	Name string `yaml:"name"`
	// Root holds testcases/ and subplans/.
	Root string `yaml:"root"`
	// Tag is matched against each module's test-suite-tag option.
	Tag             string   `yaml:"tag"`
	ABIs            []string `yaml:"abis"`
	LoadConcurrency int      `yaml:"load_concurrency"`
}

// DeviceConfig configures adb access.
type DeviceConfig struct {
	ADB            string `yaml:"adb"`
	Serial         string `yaml:"serial"`
	CommandTimeout string `yaml:"command_timeout"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
}

// GetCommandTimeout returns the per-command timeout as a duration.
func (d DeviceConfig) GetCommandTimeout() time.Duration {
	return parseDuration(d.CommandTimeout, 60*time.Second)
}

// LogcatConfig configures logcat polling.
type LogcatConfig struct {
	PollInterval string `yaml:"poll_interval"`
	MarkTimeout  string `yaml:"mark_timeout"`
}

// GetPollInterval returns the delay between logcat reads.
func (l LogcatConfig) GetPollInterval() time.Duration {
	return parseDuration(l.PollInterval, time.Second)
}

// GetMarkTimeout returns how long ClearAndMark waits for its marker.
func (l LogcatConfig) GetMarkTimeout() time.Duration {
	return parseDuration(l.MarkTimeout, 3*time.Second)
}
