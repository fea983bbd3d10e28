package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResult = `<?xml version='1.0' encoding='UTF-8' standalone='no' ?>
<Result start="1700000000000" end="1700000360000" suite_name="CTS" suite_version="14_r1" command_line_args="cts">
  <Build build_fingerprint="generic/sdk/generic:14" />
  <Summary pass="3" failed="1" modules_done="1" modules_total="2" />
  <Module name="CtsFooTestCases" abi="arm64-v8a" runtime="1200" done="true">
    <TestCase name="android.foo.cts.FooTest">
      <Test result="pass" name="testA" />
      <Test result="fail" name="testB">
        <Failure message="expected:&lt;1&gt; but was:&lt;2&gt;">
          <StackTrace>junit.framework.AssertionFailedError</StackTrace>
        </Failure>
      </Test>
      <Test result="ASSUMPTION_FAILURE" name="testC" />
    </TestCase>
  </Module>
  <Module name="CtsBarTestCases" abi="armeabi-v7a" runtime="50" done="false">
    <TestCase name="android.bar.cts.BarTest">
      <Test result="pass" name="testOne" />
      <Test result="fail" name="testTwo" />
    </TestCase>
  </Module>
</Result>
`

func TestParse(t *testing.T) {
	res, err := Parse(strings.NewReader(sampleResult))
	require.NoError(t, err)

	assert.Equal(t, "CTS", res.SuiteName)
	assert.Equal(t, "14_r1", res.SuiteVersion)
	assert.Equal(t, int64(1700000000000), res.Start)
	require.Len(t, res.Modules, 2)

	foo := res.Modules[0]
	assert.True(t, foo.Done)
	require.Len(t, foo.TestCases, 1)
	failed := foo.TestCases[0].Tests[1]
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "expected:<1> but was:<2>", failed.Failure.Message)
	assert.Equal(t, "junit.framework.AssertionFailedError", failed.Failure.StackTrace)
}

func TestParse_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"malformed":  `<Result><Module`,
		"wrong root": `<Report/>`,
		"no abi":     `<Result><Module name="CtsFoo"/></Result>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_result.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleResult), 0644))

	res, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, res.Modules, 2)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	res, err := Parse(strings.NewReader(sampleResult))
	require.NoError(t, err)

	assert.Equal(t, Counts{Passed: 2, Failed: 2, Skipped: 1, ModulesDone: 1, ModulesTotal: 2}, res.Summary())
	assert.Equal(t, Counts{Passed: 1, Failed: 1, Skipped: 1, ModulesDone: 1, ModulesTotal: 1}, res.Modules[0].Counts())
}

func TestParseResultType(t *testing.T) {
	for in, want := range map[string]ResultType{
		"failed":       Failed,
		"NOT_EXECUTED": NotExecuted,
		" passed ":     Passed,
	} {
		got, err := ParseResultType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseResultType("flaky")
	assert.Error(t, err)
}

func TestRetrySubPlan(t *testing.T) {
	res, err := Parse(strings.NewReader(sampleResult))
	require.NoError(t, err)

	tests := []struct {
		name  string
		types []ResultType
		want  []string
	}{
		{
			name:  "failed",
			types: []ResultType{Failed},
			want: []string{
				"arm64-v8a CtsFooTestCases android.foo.cts.FooTest#testB",
				"armeabi-v7a CtsBarTestCases android.bar.cts.BarTest#testTwo",
			},
		},
		{
			name:  "not executed",
			types: []ResultType{NotExecuted},
			want:  []string{"armeabi-v7a CtsBarTestCases"},
		},
		{
			name:  "failed and not executed",
			types: []ResultType{Failed, NotExecuted},
			want: []string{
				"arm64-v8a CtsFooTestCases android.foo.cts.FooTest#testB",
				"armeabi-v7a CtsBarTestCases",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := RetrySubPlan(res, tt.types...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.IncludeFilters())
			assert.Empty(t, p.ExcludeFilters())
		})
	}
}

func TestRetrySubPlan_NothingToRetry(t *testing.T) {
	passed, err := Parse(strings.NewReader(`<Result>
  <Module name="CtsFoo" abi="arm64-v8a" done="true">
    <TestCase name="android.foo.FooTest"><Test result="pass" name="testA" /></TestCase>
  </Module>
</Result>`))
	require.NoError(t, err)

	tests := map[string]struct {
		res   *Result
		types []ResultType
	}{
		"all passed": {passed, []ResultType{Failed, NotExecuted}},
		"no modules": {&Result{}, []ResultType{Failed, NotExecuted}},
		"no types":   {passed, nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := RetrySubPlan(tt.res, tt.types...)
			assert.ErrorIs(t, err, ErrNothingToRetry)
			assert.Nil(t, p)
		})
	}
}
