package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compatsuite/internal/config"
	"compatsuite/internal/device"
	"compatsuite/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger

	// newExecutor builds the host executor used for adb. Tests swap it for a
	// stub.
	newExecutor = func(c *config.Config) device.Executor {
		e := device.NewDirectExecutor(c.Device.GetCommandTimeout(), c.Device.MaxOutputBytes)
		e.SetAuditCallback(func(ev device.AuditEvent) {
			fields := []zap.Field{zap.String("event", string(ev.Type)), zap.String("command", ev.Command.CommandString())}
			if ev.Result != nil {
				fields = append(fields, zap.Int("exit", ev.Result.ExitCode), zap.Duration("duration", ev.Result.Duration))
			}
			if ev.Err != nil {
				fields = append(fields, zap.Error(ev.Err))
			}
			logger.Debug("adb", fields...)
		})
		return e
	}
)

var rootCmd = &cobra.Command{
	Use:   "compat",
	Short: "compat - compatibility suite planning and device checks",
	Long: `compat drives an installed compatibility suite.

It selects modules with include/exclude and metadata filters, manages
subplans, records sessions and their results, and runs logcat and incident
dump checks against a device over adb.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Settings()); err != nil {
			return err
		}
		logger.Debug("configuration loaded", zap.String("path", configPath), zap.String("suite_root", cfg.Suite.Root))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "compat.yaml", "Configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(subplanCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(logcatCmd)
	rootCmd.AddCommand(incidentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a context bounded by --timeout and canceled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func newDevice() *device.Device {
	return &device.Device{
		Serial:   cfg.Device.Serial,
		ADB:      cfg.Device.ADB,
		Executor: newExecutor(cfg),
	}
}
