// Package suite turns an installed suite tree and the invocation options into
// the list of modules to run.
package suite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"compatsuite/internal/filter"
	"compatsuite/internal/logging"
	"compatsuite/internal/module"
	"compatsuite/internal/subplan"
)

var (
	// ErrRetryOption is returned when a retry session is requested from the
	// suite loader instead of the retry command.
	ErrRetryOption = errors.New("--retry cannot be specified with the suite test type; use the retry command")
	// ErrNoConfigs is returned when the tests dir holds no module configs.
	ErrNoConfigs = errors.New("no config files found")
)

// Options are the invocation options that shape a plan.
type Options struct {
	SuiteRoot        string
	Subplan          string
	RetrySessionID   *int64
	IncludeFilters   []string
	ExcludeFilters   []string
	MetadataIncludes filter.MultiMap
	MetadataExcludes filter.MultiMap
	ABIs             []string
	SuiteTag         string
}

// Suite loads plans from one suite root.
type Suite struct {
	Options  Options
	Loader   *module.Loader
	Subplans *subplan.Repo
}

// New returns a Suite using opts. The subplan repo defaults to SubPlansDir.
func New(opts Options) *Suite {
	s := &Suite{Options: opts, Loader: &module.Loader{}}
	s.Subplans = subplan.NewRepo(s.SubPlansDir())
	return s
}

// TestsDir is where module configs are installed.
func (s *Suite) TestsDir() string { return filepath.Join(s.Options.SuiteRoot, "testcases") }

// SubPlansDir is where subplans are stored.
func (s *Suite) SubPlansDir() string { return filepath.Join(s.Options.SuiteRoot, "subplans") }

// ResetRetryID clears the retry session so the suite can be reloaded after
// a retry has been resolved into filters.
func (s *Suite) ResetRetryID() { s.Options.RetrySessionID = nil }

// PlannedModule is a module selected to run with its test-level filters.
type PlannedModule struct {
	Module       *module.Module
	IncludeTests []string
	ExcludeTests []string
}

// Plan is the ordered set of modules an invocation runs.
type Plan struct {
	Subplan        string
	IncludeFilters []string
	ExcludeFilters []string
	Modules        []PlannedModule
}

// IDs returns the planned module IDs in order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Modules))
	for i, m := range p.Modules {
		ids[i] = m.Module.ID
	}
	return ids
}

// LoadTests resolves the options into a Plan.
func (s *Suite) LoadTests(ctx context.Context) (*Plan, error) {
	if s.Options.RetrySessionID != nil {
		return nil, ErrRetryOption
	}
	timer := logging.StartTimer(logging.CategorySuite, "LoadTests")
	defer timer.Stop()

	includes, excludes, err := s.setupFilters()
	if err != nil {
		return nil, err
	}
	set, err := filter.NewModuleFilterSet(includes, excludes)
	if err != nil {
		return nil, err
	}

	mods, err := s.Loader.LoadDir(ctx, s.TestsDir(), s.Options.ABIs, s.Options.SuiteTag)
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoConfigs, s.TestsDir())
	}

	plan := &Plan{Subplan: s.Options.Subplan, IncludeFilters: includes, ExcludeFilters: excludes}
	for _, m := range mods {
		if !set.ShouldRun(m.ABI, m.Name) {
			logging.SuiteDebug("%s filtered out by test filters", m.ID)
			continue
		}
		if !filter.ShouldRunModule(m.Config.Metadata, s.Options.MetadataIncludes, s.Options.MetadataExcludes) {
			logging.SuiteDebug("%s filtered out by metadata", m.ID)
			continue
		}
		inc, exc := set.TestFilters(m.ABI, m.Name)
		plan.Modules = append(plan.Modules, PlannedModule{Module: m, IncludeTests: inc, ExcludeTests: exc})
	}

	logging.Suite("planned %d of %d modules", len(plan.Modules), len(mods))
	if len(plan.Modules) == 0 {
		logging.SuiteWarn("no modules left after filtering")
	}
	return plan, nil
}

// setupFilters merges the subplan's filters, if any, into the command-line
// ones.
func (s *Suite) setupFilters() (includes, excludes []string, err error) {
	includes = append([]string(nil), s.Options.IncludeFilters...)
	excludes = append([]string(nil), s.Options.ExcludeFilters...)
	if s.Options.Subplan == "" {
		return includes, excludes, nil
	}

	p, err := s.Subplans.Load(s.Options.Subplan)
	if err != nil {
		if errors.Is(err, subplan.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("unable to find or parse subplan %s: %w", s.Options.Subplan, err)
	}
	logging.Suite("using subplan %s (%d entries)", s.Options.Subplan, p.Len())
	includes = append(includes, p.IncludeFilters()...)
	excludes = append(excludes, p.ExcludeFilters()...)
	return includes, excludes, nil
}
