package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"compatsuite/internal/results"
	"compatsuite/internal/store"
	"compatsuite/internal/subplan"
	"compatsuite/internal/suite"

	"github.com/spf13/cobra"
)

var subplanCmd = &cobra.Command{
	Use:   "subplan",
	Short: "Show or create subplans",
}

var subplanShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the entries of a subplan",
	Args:  cobra.ExactArgs(1),
	RunE:  showSubplan,
}

// subplanRepo returns the subplan repo of the configured suite.
func subplanRepo() *subplan.Repo {
	return newSuite(suite.Options{SuiteRoot: cfg.Suite.Root}).Subplans
}

func showSubplan(cmd *cobra.Command, args []string) error {
	p, err := subplanRepo().Load(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	header(w, "subplan %s", args[0])
	for _, f := range p.IncludeFilters() {
		fmt.Fprintf(w, "include %s\n", f)
	}
	for _, f := range p.ExcludeFilters() {
		fmt.Fprintf(w, "exclude %s\n", f)
	}
	return nil
}

var (
	subplanName        string
	subplanSession     int64
	subplanResultTypes []string
)

var subplanAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a subplan from a stored session's results",
	Long: `Creates a subplan from the results of a recorded session.

Example:
  compat subplan add --name flaky --session 3 --result-type failed`,
	Args: cobra.NoArgs,
	RunE: addSubplan,
}

func addSubplan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	types, err := parseResultTypes(subplanResultTypes)
	if err != nil {
		return err
	}
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.LoadResult(ctx, subplanSession)
	if err != nil {
		return err
	}
	p, err := results.RetrySubPlan(res, types...)
	if err != nil {
		return fmt.Errorf("session %d: %w", subplanSession, err)
	}
	repo := subplanRepo()
	if err := repo.Save(subplanName, p); err != nil {
		return err
	}
	ok(cmd.OutOrStdout(), "subplan %s written to %s (%d entries)", subplanName, repo.Path(subplanName), p.Len())
	return nil
}

var subplanWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Validate subplans as they are edited",
	Long: `Watches the subplans directory and re-reads each subplan after it changes,
printing its entry count or the parse error. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		return watchSubplans(ctx, subplanRepo(), cmd.OutOrStdout())
	},
}

// watchSubplans prints every stored subplan, then reports changes until ctx
// is done.
func watchSubplans(ctx context.Context, repo *subplan.Repo, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wait, err := repo.Watch(ctx, func(name string) { reportSubplan(w, repo, name) })
	if err != nil {
		return err
	}
	names, err := repo.List()
	if err != nil {
		cancel()
		_ = wait()
		return err
	}
	header(w, "watching %d subplans in %s", len(names), repo.Dir())
	for _, name := range names {
		reportSubplan(w, repo, name)
	}
	return wait()
}

func reportSubplan(w io.Writer, repo *subplan.Repo, name string) {
	p, err := repo.Load(name)
	switch {
	case errors.Is(err, subplan.ErrNotFound):
		fmt.Fprintf(w, "%s %s\n", name, dimStyle.Render("(removed)"))
	case err != nil:
		fail(w, "%s: %v", name, err)
	default:
		fmt.Fprintf(w, "%s %s\n", name, dimStyle.Render(fmt.Sprintf("(%d entries)", p.Len())))
	}
}

func init() {
	subplanAddCmd.Flags().StringVar(&subplanName, "name", "", "Subplan name (required)")
	subplanAddCmd.Flags().Int64Var(&subplanSession, "session", 0, "Session to read results from (required)")
	subplanAddCmd.Flags().StringSliceVar(&subplanResultTypes, "result-type", []string{"failed", "not_executed"}, "Result types to include")
	subplanAddCmd.MarkFlagRequired("name")
	subplanAddCmd.MarkFlagRequired("session")

	subplanCmd.AddCommand(subplanShowCmd)
	subplanCmd.AddCommand(subplanAddCmd)
	subplanCmd.AddCommand(subplanWatchCmd)
}
