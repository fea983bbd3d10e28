package filter

import (
	"fmt"
	"sort"
	"strings"
)

// KnownABIs lists the ABI names accepted as the leading token of a test filter.
var KnownABIs = []string{
	"armeabi", "armeabi-v7a", "arm64-v8a",
	"x86", "x86_64",
	"mips", "mips64",
	"riscv64",
}

// IsKnownABI reports whether name is one of KnownABIs.
func IsKnownABI(name string) bool {
	for _, abi := range KnownABIs {
		if abi == name {
			return true
		}
	}
	return false
}

// TestFilter selects a module, optionally narrowed to an ABI and a test
// ("class" or "class#method").
type TestFilter struct {
	ABI    string
	Module string
	Test   string
}

// ParseTestFilter parses "[abi] module [test]".
func ParseTestFilter(s string) (TestFilter, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return TestFilter{Module: fields[0]}, nil
	case 2:
		if IsKnownABI(fields[0]) {
			return TestFilter{ABI: fields[0], Module: fields[1]}, nil
		}
		return TestFilter{Module: fields[0], Test: fields[1]}, nil
	case 3:
		if !IsKnownABI(fields[0]) {
			return TestFilter{}, fmt.Errorf("%w: unknown abi %q in %q", ErrInvalidFilter, fields[0], s)
		}
		return TestFilter{ABI: fields[0], Module: fields[1], Test: fields[2]}, nil
	case 0:
		return TestFilter{}, fmt.Errorf("%w: empty test filter", ErrInvalidFilter)
	default:
		return TestFilter{}, fmt.Errorf("%w: too many tokens in %q", ErrInvalidFilter, s)
	}
}

// String returns the canonical "[abi] module [test]" form.
func (f TestFilter) String() string {
	parts := make([]string, 0, 3)
	if f.ABI != "" {
		parts = append(parts, f.ABI)
	}
	parts = append(parts, f.Module)
	if f.Test != "" {
		parts = append(parts, f.Test)
	}
	return strings.Join(parts, " ")
}

// MatchesModule reports whether the filter targets the module under abi.
func (f TestFilter) MatchesModule(abi, module string) bool {
	return f.Module == module && (f.ABI == "" || f.ABI == abi)
}

// ModuleFilterSet holds the include and exclude test filters of a run.
type ModuleFilterSet struct {
	Includes []TestFilter
	Excludes []TestFilter
}

// NewModuleFilterSet parses include and exclude filter strings.
func NewModuleFilterSet(includes, excludes []string) (*ModuleFilterSet, error) {
	set := &ModuleFilterSet{}
	for _, s := range includes {
		f, err := ParseTestFilter(s)
		if err != nil {
			return nil, err
		}
		set.Includes = append(set.Includes, f)
	}
	for _, s := range excludes {
		f, err := ParseTestFilter(s)
		if err != nil {
			return nil, err
		}
		set.Excludes = append(set.Excludes, f)
	}
	return set, nil
}

// ShouldRun reports whether the module runs at all. Exclude filters naming a
// test only narrow the module and never drop it.
func (s *ModuleFilterSet) ShouldRun(abi, module string) bool {
	for _, f := range s.Excludes {
		if f.Test == "" && f.MatchesModule(abi, module) {
			return false
		}
	}
	if len(s.Includes) == 0 {
		return true
	}
	for _, f := range s.Includes {
		if f.MatchesModule(abi, module) {
			return true
		}
	}
	return false
}

// TestFilters returns the sorted test-level include and exclude filters that
// apply inside the module.
func (s *ModuleFilterSet) TestFilters(abi, module string) (includes, excludes []string) {
	includes = testsFor(s.Includes, abi, module)
	excludes = testsFor(s.Excludes, abi, module)
	return includes, excludes
}

func testsFor(filters []TestFilter, abi, module string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range filters {
		if f.Test == "" || !f.MatchesModule(abi, module) || seen[f.Test] {
			continue
		}
		seen[f.Test] = true
		out = append(out, f.Test)
	}
	sort.Strings(out)
	return out
}
