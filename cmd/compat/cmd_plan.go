package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"compatsuite/internal/filter"
	"compatsuite/internal/module"
	"compatsuite/internal/results"
	"compatsuite/internal/store"
	"compatsuite/internal/suite"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// planFlags are shared by the commands that resolve a plan.
type planFlags struct {
	includeFilters   []string
	excludeFilters   []string
	metadataIncludes []string
	metadataExcludes []string
	subplan          string
	abis             []string
	retry            int64
}

var (
	listModulesFlags planFlags
	planCmdFlags     planFlags
)

func (f *planFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVar(&f.includeFilters, "include-filter", nil, `Run only matching modules or tests ("[abi] module [test]")`)
	fs.StringArrayVar(&f.excludeFilters, "exclude-filter", nil, `Skip matching modules or tests ("[abi] module [test]")`)
	fs.StringArrayVar(&f.metadataIncludes, "module-metadata-include-filter", nil, "Run only modules with this metadata (key:value)")
	fs.StringArrayVar(&f.metadataExcludes, "module-metadata-exclude-filter", nil, "Skip modules with this metadata (key:value)")
	fs.StringSliceVar(&f.abis, "abi", nil, "ABIs to plan for (default from config)")
}

// registerSelection adds the --subplan and --retry flags.
func (f *planFlags) registerSelection(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subplan, "subplan", "", "Add the filters of a stored subplan")
	cmd.Flags().Int64Var(&f.retry, "retry", 0, "Session to retry")
}

// options turns the flags into suite options using the loaded config.
func (f *planFlags) options(cmd *cobra.Command) (suite.Options, error) {
	inc, err := filter.ParseMetadataFilters(f.metadataIncludes)
	if err != nil {
		return suite.Options{}, err
	}
	exc, err := filter.ParseMetadataFilters(f.metadataExcludes)
	if err != nil {
		return suite.Options{}, err
	}
	opts := suite.Options{
		SuiteRoot:        cfg.Suite.Root,
		Subplan:          f.subplan,
		IncludeFilters:   f.includeFilters,
		ExcludeFilters:   f.excludeFilters,
		MetadataIncludes: inc,
		MetadataExcludes: exc,
		ABIs:             f.abis,
		SuiteTag:         cfg.Suite.Tag,
	}
	if len(opts.ABIs) == 0 {
		opts.ABIs = cfg.Suite.ABIs
	}
	if cmd.Flags().Changed("retry") {
		id := f.retry
		opts.RetrySessionID = &id
	}
	return opts, nil
}

func newSuite(opts suite.Options) *suite.Suite {
	s := suite.New(opts)
	s.Loader = &module.Loader{Concurrency: cfg.Suite.LoadConcurrency}
	return s
}

func loadPlan(ctx context.Context, cmd *cobra.Command, f *planFlags) (*suite.Plan, error) {
	opts, err := f.options(cmd)
	if err != nil {
		return nil, err
	}
	plan, err := newSuite(opts).LoadTests(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("plan loaded", zap.Int("modules", len(plan.Modules)), zap.String("subplan", plan.Subplan))
	return plan, nil
}

func printPlan(cmd *cobra.Command, plan *suite.Plan) {
	w := cmd.OutOrStdout()
	header(w, "%d modules", len(plan.Modules))
	for _, m := range plan.Modules {
		line := m.Module.ID
		if len(m.IncludeTests) > 0 {
			line += dimStyle.Render(" +" + strings.Join(m.IncludeTests, " +"))
		}
		if len(m.ExcludeTests) > 0 {
			line += dimStyle.Render(" -" + strings.Join(m.ExcludeTests, " -"))
		}
		fmt.Fprintln(w, line)
	}
}

func storePlan(plan *suite.Plan) store.Plan {
	return store.Plan{
		Subplan:        plan.Subplan,
		IncludeFilters: plan.IncludeFilters,
		ExcludeFilters: plan.ExcludeFilters,
		Modules:        plan.IDs(),
	}
}

// planCmd resolves a plan and records it as a new session.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Resolve the modules to run and record a session",
	Long: `Resolves the modules to run from the suite's testcases directory and the
given filters, prints them and records the plan as a new session.

Example:
  compat plan --subplan smoke --module-metadata-exclude-filter parameter:instant_app`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	plan, err := loadPlan(ctx, cmd, &planCmdFlags)
	if err != nil {
		if errors.Is(err, suite.ErrRetryOption) {
			return fmt.Errorf("%w (compat retry %d)", err, planCmdFlags.retry)
		}
		return err
	}
	return recordPlan(ctx, cmd, plan)
}

func recordPlan(ctx context.Context, cmd *cobra.Command, plan *suite.Plan) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.CreateSession(ctx, cfg.Suite.Name, storePlan(plan))
	if err != nil {
		return err
	}
	printPlan(cmd, plan)
	ok(cmd.OutOrStdout(), "session %d recorded", id)
	return nil
}

var (
	retryTypes []string
	retryFlags planFlags
)

// retryCmd turns a stored session's result into a subplan and plans it.
var retryCmd = &cobra.Command{
	Use:   "retry <session>",
	Short: "Plan the failed and unfinished parts of a session",
	Long: `Builds a subplan named retry-<session> from the stored result of a session
and records a new session planned from it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}
	types, err := parseResultTypes(retryTypes)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	res, err := st.LoadResult(ctx, id)
	st.Close()
	if err != nil {
		return err
	}
	retry, err := results.RetrySubPlan(res, types...)
	if err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}

	opts, err := retryFlags.options(cmd)
	if err != nil {
		return err
	}
	opts.RetrySessionID = &id
	s := newSuite(opts)

	name := fmt.Sprintf("retry-%d", id)
	if err := s.Subplans.Save(name, retry); err != nil {
		return err
	}
	s.ResetRetryID()
	s.Options.Subplan = name

	plan, err := s.LoadTests(ctx)
	if err != nil {
		return err
	}
	return recordPlan(ctx, cmd, plan)
}

func parseResultTypes(names []string) ([]results.ResultType, error) {
	var types []results.ResultType
	for _, n := range names {
		t, err := results.ParseResultType(n)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func init() {
	planCmdFlags.register(planCmd)
	planCmdFlags.registerSelection(planCmd)
	retryFlags.register(retryCmd)
	retryCmd.Flags().StringSliceVar(&retryTypes, "result-type", []string{"failed", "not_executed"}, "Result types to retry")
}
