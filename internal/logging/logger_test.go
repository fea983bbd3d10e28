package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestAllCategoriesLog tests that all categories create log files when debug mode is on
func TestAllCategoriesLog(t *testing.T) {
	logsPath := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(logsPath, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	t.Cleanup(func() { _ = Initialize(t.TempDir(), Settings{}) })

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategorySuite,
		CategoryFilter,
		CategorySubplan,
		CategoryModule,
		CategoryDevice,
		CategoryLogcat,
		CategoryIncident,
		CategoryStore,
		CategoryResults,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Suite("Convenience suite log")
	Subplan("Convenience subplan log")
	Device("Convenience device log")
	Store("Convenience store log")

	CloseAll()

	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug mode is off
func TestDebugModeDisabled(t *testing.T) {
	logsPath := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(logsPath, Settings{DebugMode: false, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}
	if IsCategoryEnabled(CategorySuite) {
		t.Error("Category suite should be disabled when debug_mode=false")
	}

	Suite("This should NOT be logged")
	Get(CategoryBoot).Error("This should NOT be logged")
	CloseAll()

	if _, err := os.Stat(logsPath); !os.IsNotExist(err) {
		t.Errorf("Expected logs directory to not exist, stat err: %v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	logsPath := filepath.Join(t.TempDir(), "logs")
	err := Initialize(logsPath, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"suite": true, "device": false},
	})
	if err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	t.Cleanup(func() { _ = Initialize(t.TempDir(), Settings{}) })

	if !IsCategoryEnabled(CategorySuite) {
		t.Error("suite should be enabled")
	}
	if IsCategoryEnabled(CategoryDevice) {
		t.Error("device should be disabled")
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("unlisted categories default to enabled")
	}

	Device("dropped")
	Suite("kept")
	CloseAll()

	entries, _ := os.ReadDir(logsPath)
	for _, e := range entries {
		if strings.Contains(e.Name(), "_device.log") {
			t.Errorf("unexpected log file %s", e.Name())
		}
	}
}

func TestInitializeRequiresDir(t *testing.T) {
	if err := Initialize("", Settings{}); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestJSONFormat(t *testing.T) {
	logsPath := filepath.Join(t.TempDir(), "logs")
	if err := Initialize(logsPath, Settings{DebugMode: true, Level: "info", JSONFormat: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	t.Cleanup(func() { _ = Initialize(t.TempDir(), Settings{}) })

	Get(CategoryResults).With("session", 7).Info("imported %d modules", 3)
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(logsPath, "*_results.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one results log, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"imported 3 modules"`) || !strings.Contains(string(data), `"session":7`) {
		t.Errorf("unexpected JSON log content: %s", data)
	}
}

func TestTimerStopWithThreshold(t *testing.T) {
	timer := StartTimer(CategorySuite, "noop")
	time.Sleep(time.Millisecond)
	if d := timer.StopWithThreshold(time.Hour); d <= 0 {
		t.Errorf("expected positive duration, got %v", d)
	}
}
