package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"compatsuite/internal/incident"
	"compatsuite/internal/logcat"
	"compatsuite/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

var logcatCmd = &cobra.Command{
	Use:   "logcat",
	Short: "Mark and search the device logcat",
}

func newInspector() *logcat.Inspector {
	return &logcat.Inspector{
		Shell:        newDevice(),
		PollInterval: cfg.Logcat.GetPollInterval(),
		MarkTimeout:  cfg.Logcat.GetMarkTimeout(),
	}
}

var logcatMarkCmd = &cobra.Command{
	Use:   "mark <tag>",
	Short: "Clear logcat and log a unique marker under tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		marker, err := newInspector().ClearAndMark(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), marker)
		return nil
	},
}

var logcatWithin time.Duration

var logcatWaitCmd = &cobra.Command{
	Use:   "wait <tag> <string>...",
	Short: "Wait for strings to appear in order under tag",
	Long: `Polls logcat until every string has appeared, in order, on separate lines
logged under tag. Pass the marker printed by "compat logcat mark" first to
ignore older lines.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		if err := newInspector().AssertContainsInOrder(ctx, args[0], logcatWithin, args[1:]...); err != nil {
			return err
		}
		ok(cmd.OutOrStdout(), "found %d strings", len(args)-1)
		return nil
	},
}

var incidentCmd = &cobra.Command{
	Use:   "incident",
	Short: "Verify proto dumps from the device",
}

var incidentSession int64

const settingsService = "settings"

var incidentSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Dump and verify the settings service",
	Long: `Runs "dumpsys settings --proto" on the device, parses it with the schema
from incident.descriptor_set and checks its structure. With --session the raw
dump is stored with that session.`,
	Args: cobra.NoArgs,
	RunE: runIncidentSettings,
}

// settingsMessage returns an empty settings dump message from the configured
// schema.
func settingsMessage() (proto.Message, error) {
	if cfg.Incident.DescriptorSet == "" {
		return nil, fmt.Errorf("incident.descriptor_set is not configured")
	}
	schema, err := incident.LoadSchema(cfg.Incident.DescriptorSet)
	if err != nil {
		return nil, err
	}
	return schema.NewMessage(incident.SettingsDumpName)
}

// verifySettings checks a parsed settings dump of size bytes and prints every
// problem found.
func verifySettings(w io.Writer, msg proto.Message, size int) error {
	if err := incident.VerifySettings(msg); err != nil {
		for _, e := range multierr.Errors(err) {
			fail(w, "%v", e)
		}
		return err
	}
	ok(w, "settings dump ok (%d bytes)", size)
	return nil
}

func runIncidentSettings(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	msg, err := settingsMessage()
	if err != nil {
		return err
	}
	dumper := &incident.Dumper{Shell: newDevice()}
	raw, err := dumper.Raw(ctx, incident.SettingsCommand)
	if err != nil {
		return err
	}
	if err := proto.Unmarshal(raw, msg); err != nil {
		return fmt.Errorf("failed to parse settings dump: %w", err)
	}

	if incidentSession > 0 {
		st, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		id, err := st.SaveDump(ctx, incidentSession, settingsService, raw)
		st.Close()
		if err != nil {
			return err
		}
		logger.Info("dump stored", zap.Int64("session", incidentSession), zap.Int64("dump", id))
	}

	return verifySettings(cmd.OutOrStdout(), msg, len(raw))
}

var incidentShowCmd = &cobra.Command{
	Use:   "show <dump>",
	Short: "Verify a stored dump again",
	Long: `Loads a dump stored by "compat incident settings --session" and runs the
settings checks on it with the current schema.`,
	Args: cobra.ExactArgs(1),
	RunE: runIncidentShow,
}

func runIncidentShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid dump id %q", args[0])
	}
	msg, err := settingsMessage()
	if err != nil {
		return err
	}
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	d, err := st.LoadDump(ctx, id)
	st.Close()
	if err != nil {
		return err
	}
	if d.Service != settingsService {
		return fmt.Errorf("dump %d is a %s dump; only %s dumps can be verified", id, d.Service, settingsService)
	}

	w := cmd.OutOrStdout()
	header(w, "dump %d of session %d (%s, captured %s)",
		d.ID, d.SessionID, d.Service, d.CapturedAt.Local().Format("2006-01-02 15:04"))
	if err := proto.Unmarshal(d.Data, msg); err != nil {
		return fmt.Errorf("failed to parse dump %d: %w", id, err)
	}
	return verifySettings(w, msg, len(d.Data))
}

func init() {
	logcatWaitCmd.Flags().DurationVar(&logcatWithin, "within", 10*time.Second, "How long to wait")
	logcatCmd.AddCommand(logcatMarkCmd)
	logcatCmd.AddCommand(logcatWaitCmd)

	incidentSettingsCmd.Flags().Int64Var(&incidentSession, "session", 0, "Store the dump with this session")
	incidentCmd.AddCommand(incidentSettingsCmd)
	incidentCmd.AddCommand(incidentShowCmd)
}
