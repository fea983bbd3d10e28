package main

import (
	"fmt"
	"strconv"

	"compatsuite/internal/store"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List modules, subplans or sessions",
}

var listModulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Print the modules selected by the given filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		plan, err := loadPlan(ctx, cmd, &listModulesFlags)
		if err != nil {
			return err
		}
		printPlan(cmd, plan)
		return nil
	},
}

var listSubplansCmd = &cobra.Command{
	Use:   "subplans",
	Short: "Print the stored subplans",
	Args:  cobra.NoArgs,
	RunE:  listSubplans,
}

func listSubplans(cmd *cobra.Command, args []string) error {
	repo := subplanRepo()
	names, err := repo.List()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	header(w, "%d subplans in %s", len(names), repo.Dir())
	for _, name := range names {
		p, err := repo.Load(name)
		if err != nil {
			fail(w, "%s: %v", name, err)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", name, dimStyle.Render(fmt.Sprintf("(%d entries)", p.Len())))
	}
	return nil
}

var listSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Print the recorded sessions",
	Args:  cobra.NoArgs,
	RunE:  listSessions,
}

func listSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	header(w, "%d sessions", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(w, "%d  %s  %s  modules %d/%d  pass %d  fail %d\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.SuiteName,
			s.ModulesDone, len(s.Plan.Modules), s.Passed, s.Failed)
	}
	return nil
}

func parseSessionID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return id, nil
}

func init() {
	listModulesFlags.register(listModulesCmd)
	listModulesFlags.registerSelection(listModulesCmd)

	listCmd.AddCommand(listModulesCmd)
	listCmd.AddCommand(listSubplansCmd)
	listCmd.AddCommand(listSessionsCmd)
}
