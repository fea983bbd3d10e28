package store

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"compatsuite/internal/results"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const resultXML = `<Result start="10" end="20" suite_name="CTS" suite_version="14_r1">
  <Module name="CtsFoo" abi="arm64-v8a" runtime="5" done="true">
    <TestCase name="android.foo.FooTest">
      <Test result="pass" name="testA" />
      <Test result="fail" name="testB"><Failure message="boom"><StackTrace>at Foo</StackTrace></Failure></Test>
    </TestCase>
    <TestCase name="android.foo.OtherTest">
      <Test result="pass" name="testC" />
    </TestCase>
  </Module>
  <Module name="CtsBar" abi="armeabi-v7a" runtime="0" done="false" />
</Result>`

func parseResult(t *testing.T) *results.Result {
	t.Helper()
	res, err := results.Parse(strings.NewReader(resultXML))
	require.NoError(t, err)
	return res
}

func TestNewStore(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, "sessions.db", filepath.Base(s.Path()))

	// Reopening an existing database keeps the schema.
	again, err := NewStore(s.Path())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	plan := Plan{Subplan: "smoke", IncludeFilters: []string{"CtsFoo"}, Modules: []string{"arm64-v8a CtsFoo"}}
	id1, err := s.CreateSession(ctx, "CTS", plan)
	require.NoError(t, err)
	id2, err := s.CreateSession(ctx, "CTS", Plan{Modules: []string{}})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	sess, err := s.Session(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "CTS", sess.SuiteName)
	assert.Equal(t, plan, sess.Plan)
	assert.NotEmpty(t, sess.UUID)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.Zero(t, sess.ModulesTotal)

	sessions, err = s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, id1, sessions[0].ID)
	assert.NotEqual(t, sessions[0].UUID, sessions[1].UUID)

	_, err = s.Session(ctx, 999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestImportAndLoadResult(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	id, err := s.CreateSession(ctx, "CTS", Plan{Modules: []string{"arm64-v8a CtsFoo", "armeabi-v7a CtsBar"}})
	require.NoError(t, err)

	want := parseResult(t)
	require.NoError(t, s.ImportResult(ctx, id, want))

	got, err := s.LoadResult(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".XMLName"
	}, cmp.Ignore())); diff != "" {
		t.Errorf("LoadResult() mismatch (-want +got):\n%s", diff)
	}

	sess, err := s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "14_r1", sess.SuiteVersion)
	assert.Equal(t, 2, sess.Passed)
	assert.Equal(t, 1, sess.Failed)
	assert.Equal(t, 1, sess.ModulesDone)
	assert.Equal(t, 2, sess.ModulesTotal)

	// Retry subplans can be derived from stored sessions.
	retry, err := results.RetrySubPlan(got, results.Failed, results.NotExecuted)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"arm64-v8a CtsFoo android.foo.FooTest#testB",
		"armeabi-v7a CtsBar",
	}, retry.IncludeFilters())
}

func TestImportResult_Replaces(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	id, err := s.CreateSession(ctx, "CTS", Plan{})
	require.NoError(t, err)

	require.NoError(t, s.ImportResult(ctx, id, parseResult(t)))
	require.NoError(t, s.ImportResult(ctx, id, parseResult(t)))

	got, err := s.LoadResult(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Modules, 2)
	assert.Len(t, got.Modules[0].TestCases, 2)
}

func TestImportResult_UnknownSession(t *testing.T) {
	s := newStore(t)
	err := s.ImportResult(context.Background(), 42, parseResult(t))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.LoadResult(context.Background(), 42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDumps(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	id, err := s.CreateSession(ctx, "CTS", Plan{})
	require.NoError(t, err)

	raw := bytes.Repeat([]byte("\x0a\x05hello"), 1000)
	dumpID, err := s.SaveDump(ctx, id, "settings", raw)
	require.NoError(t, err)

	d, err := s.LoadDump(ctx, dumpID)
	require.NoError(t, err)
	assert.Equal(t, id, d.SessionID)
	assert.Equal(t, "settings", d.Service)
	assert.Equal(t, raw, d.Data)
	assert.False(t, d.CapturedAt.IsZero())

	_, err = s.SaveDump(ctx, 999, "settings", raw)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.LoadDump(ctx, 999)
	assert.ErrorIs(t, err, ErrDumpNotFound)
}

func TestNewStore_MigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		suite_name TEXT NOT NULL,
		plan_json TEXT NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	for _, col := range []string{"suite_version", "result_start", "result_end"} {
		ok, err := columnExists(s.db, "sessions", col)
		require.NoError(t, err)
		assert.True(t, ok, col)
	}

	// Running again is a no-op.
	require.NoError(t, RunMigrations(s.db))

	id, err := s.CreateSession(context.Background(), "cts", Plan{Subplan: "smoke"})
	require.NoError(t, err)
	got, err := s.Session(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "smoke", got.Plan.Subplan)
}

func TestZstdCoders(t *testing.T) {
	enc, err := getZstdEncoder()
	require.NoError(t, err)
	require.NotNil(t, enc)
	dec, err := getZstdDecoder()
	require.NoError(t, err)
	require.NotNil(t, dec)

	compressed := enc.EncodeAll([]byte("settings"), nil)
	zstdEncoderPool.Put(enc)
	out, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, "settings", string(out))
	zstdDecoderPool.Put(dec)

	// Pooled coders are reused.
	again, err := getZstdDecoder()
	require.NoError(t, err)
	out, err = again.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, "settings", string(out))
}
