// Package results reads suite result reports and derives retry subplans from
// them.
package results

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"compatsuite/internal/logging"
	"compatsuite/internal/subplan"
)

var (
	// ErrParse is returned for malformed result reports.
	ErrParse = errors.New("result parse error")
	// ErrNothingToRetry is returned when a result has no tests of the
	// requested types. An empty subplan would select every module.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// Test result values as written in the report.
const (
	StatusPass       = "pass"
	StatusFail       = "fail"
	StatusIgnored    = "ignored"
	StatusAssumption = "ASSUMPTION_FAILURE"
)

// Result is the root of a test_result.xml report.
type Result struct {
	XMLName      xml.Name  `xml:"Result"`
	Start        int64     `xml:"start,attr"`
	End          int64     `xml:"end,attr"`
	SuiteName    string    `xml:"suite_name,attr"`
	SuiteVersion string    `xml:"suite_version,attr"`
	Modules      []*Module `xml:"Module"`
}

// Module is one module run for one ABI.
type Module struct {
	Name      string      `xml:"name,attr"`
	ABI       string      `xml:"abi,attr"`
	Done      bool        `xml:"done,attr"`
	Runtime   int64       `xml:"runtime,attr"`
	TestCases []*TestCase `xml:"TestCase"`
}

// TestCase groups the tests of one class.
type TestCase struct {
	Name  string  `xml:"name,attr"`
	Tests []*Test `xml:"Test"`
}

// Test is a single test method result.
type Test struct {
	Name    string   `xml:"name,attr"`
	Result  string   `xml:"result,attr"`
	Failure *Failure `xml:"Failure,omitempty"`
}

// Failure carries the failure message of a failed test.
type Failure struct {
	Message    string `xml:"message,attr"`
	StackTrace string `xml:"StackTrace,omitempty"`
}

// Parse reads a result report.
func Parse(r io.Reader) (*Result, error) {
	var res Result
	if err := xml.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	for i, m := range res.Modules {
		if m.Name == "" || m.ABI == "" {
			return nil, fmt.Errorf("%w: module %d is missing name or abi", ErrParse, i)
		}
	}
	return &res, nil
}

// ParseFile reads the report at path.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result: %w", err)
	}
	defer f.Close()
	res, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.ResultsDebug("parsed %s: %d modules", path, len(res.Modules))
	return res, nil
}

// Counts of a module or a whole result.
type Counts struct {
	Passed       int
	Failed       int
	Skipped      int
	ModulesDone  int
	ModulesTotal int
}

// Counts tallies the tests of the module.
func (m *Module) Counts() Counts {
	var c Counts
	for _, tc := range m.TestCases {
		for _, t := range tc.Tests {
			switch t.Result {
			case StatusPass:
				c.Passed++
			case StatusFail:
				c.Failed++
			default:
				c.Skipped++
			}
		}
	}
	c.ModulesTotal = 1
	if m.Done {
		c.ModulesDone = 1
	}
	return c
}

// Summary tallies the whole result.
func (r *Result) Summary() Counts {
	var sum Counts
	for _, m := range r.Modules {
		c := m.Counts()
		sum.Passed += c.Passed
		sum.Failed += c.Failed
		sum.Skipped += c.Skipped
		sum.ModulesDone += c.ModulesDone
		sum.ModulesTotal += c.ModulesTotal
	}
	return sum
}

// ResultType selects which entries of a result a retry subplan includes.
type ResultType string

const (
	Passed      ResultType = "passed"
	Failed      ResultType = "failed"
	NotExecuted ResultType = "not_executed"
)

// ParseResultType validates a result type name.
func ParseResultType(s string) (ResultType, error) {
	switch t := ResultType(strings.ToLower(strings.TrimSpace(s))); t {
	case Passed, Failed, NotExecuted:
		return t, nil
	}
	return "", fmt.Errorf("unknown result type %q (want passed, failed or not_executed)", s)
}

// RetrySubPlan builds a subplan that includes the tests or modules of r
// matching any of types. Unfinished modules are included whole when
// NotExecuted is requested. It fails with ErrNothingToRetry when nothing
// matches.
func RetrySubPlan(r *Result, types ...ResultType) (*subplan.SubPlan, error) {
	want := make(map[ResultType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	p := subplan.New()
	for _, m := range r.Modules {
		// A whole-module entry must not be narrowed by test entries.
		if want[NotExecuted] && !m.Done {
			p.AddInclude(m.ABI + " " + m.Name)
			continue
		}
		for _, tc := range m.TestCases {
			for _, t := range tc.Tests {
				if (want[Failed] && t.Result == StatusFail) || (want[Passed] && t.Result == StatusPass) {
					p.AddInclude(fmt.Sprintf("%s %s %s#%s", m.ABI, m.Name, tc.Name, t.Name))
				}
			}
		}
	}
	if p.Len() == 0 {
		return nil, fmt.Errorf("%w: no %v tests in %d modules", ErrNothingToRetry, types, len(r.Modules))
	}
	logging.Results("retry subplan for %v: %d entries", types, p.Len())
	return p, nil
}
