package main

import (
	"compatsuite/internal/results"
	"compatsuite/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage session results",
}

var resultsImportCmd = &cobra.Command{
	Use:   "import <session> <test_result.xml>",
	Short: "Attach a result report to a session",
	Args:  cobra.ExactArgs(2),
	RunE:  importResults,
}

func importResults(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}
	res, err := results.ParseFile(args[1])
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.ImportResult(ctx, id, res); err != nil {
		return err
	}

	sum := res.Summary()
	logger.Info("results imported", zap.Int64("session", id), zap.Int("modules", sum.ModulesTotal))
	w := cmd.OutOrStdout()
	header(w, "session %d", id)
	ok(w, "pass %d", sum.Passed)
	if sum.Failed > 0 {
		fail(w, "fail %d", sum.Failed)
	}
	ok(w, "modules done %d/%d", sum.ModulesDone, sum.ModulesTotal)
	return nil
}

func init() {
	resultsCmd.AddCommand(resultsImportCmd)
}
