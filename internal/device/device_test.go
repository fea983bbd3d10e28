package device

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandString(t *testing.T) {
	assert.Equal(t, "adb", Command{Binary: "adb"}.CommandString())
	assert.Equal(t, "adb -s X shell ls", Command{Binary: "adb", Arguments: []string{"-s", "X", "shell", "ls"}}.CommandString())
}

func TestResultOutput(t *testing.T) {
	assert.Equal(t, "out", (&Result{Stdout: "out"}).Output())
	assert.Equal(t, "err", (&Result{Stderr: "err"}).Output())
	assert.Equal(t, "out\nerr", (&Result{Stdout: "out", Stderr: "err"}).Output())
}

func TestDirectExecutor_Success(t *testing.T) {
	e := NewDirectExecutor(0, 0)

	var mu sync.Mutex
	var events []AuditEventType
	e.SetAuditCallback(func(ev AuditEvent) {
		mu.Lock()
		events = append(events, ev.Type)
		mu.Unlock()
	})

	res, err := e.Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", "echo $GREETING; echo oops 1>&2"},
		Environment: []string{"GREETING=hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.False(t, res.Killed)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventComplete}, events)
}

func TestDirectExecutor_NonZeroExit(t *testing.T) {
	res, err := NewDirectExecutor(0, 0).Execute(context.Background(), Command{
		Binary: "sh", Arguments: []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestDirectExecutor_Stdin(t *testing.T) {
	res, err := NewDirectExecutor(0, 0).Execute(context.Background(), Command{
		Binary: "cat", Stdin: "piped",
	})
	require.NoError(t, err)
	assert.Equal(t, "piped", res.Stdout)
}

func TestDirectExecutor_Timeout(t *testing.T) {
	res, err := NewDirectExecutor(0, 0).Execute(context.Background(), Command{
		Binary: "sleep", Arguments: []string{"5"}, Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Killed)
	assert.Contains(t, res.KillReason, "timeout")
}

func TestDirectExecutor_Truncation(t *testing.T) {
	res, err := NewDirectExecutor(0, 4).Execute(context.Background(), Command{
		Binary: "sh", Arguments: []string{"-c", "printf 0123456789"},
	})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, "0123", res.Stdout)
}

func TestDirectExecutor_Errors(t *testing.T) {
	e := NewDirectExecutor(0, 0)
	_, err := e.Execute(context.Background(), Command{})
	assert.Error(t, err)

	var got []AuditEventType
	e.SetAuditCallback(func(ev AuditEvent) { got = append(got, ev.Type) })
	_, err = e.Execute(context.Background(), Command{Binary: "/nonexistent/binary"})
	assert.Error(t, err)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventError}, got)
}

func TestLimitedWriter(t *testing.T) {
	var sink bytesSink
	lw := &limitedWriter{w: &sink, max: 5}

	n, err := lw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = lw.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = lw.Write([]byte("hij"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, "abcde", string(sink))
	assert.True(t, lw.truncated)
	assert.Equal(t, int64(5), lw.discarded)
}

type bytesSink []byte

func (b *bytesSink) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

func TestDevice_Shell(t *testing.T) {
	stub := NewStubExecutor().
		RespondTo("/adb -s emulator-5554 shell getprop ro.build.type", "userdebug\n").
		RespondWith("/adb -s emulator-5554 shell false", &Result{ExitCode: 1, Stderr: "nope\n"})
	d := &Device{Serial: "emulator-5554", ADB: "/adb", Executor: stub}

	out, err := d.Shell(context.Background(), "getprop ro.build.type")
	require.NoError(t, err)
	assert.Equal(t, "userdebug\n", out)

	_, err = d.Shell(context.Background(), "false")
	require.ErrorIs(t, err, ErrShell)
	assert.Contains(t, err.Error(), "nope")

	assert.Equal(t, []string{
		"/adb -s emulator-5554 shell getprop ro.build.type",
		"/adb -s emulator-5554 shell false",
	}, stub.Calls())
}

func TestDevice_ShellStream(t *testing.T) {
	stub := NewStubExecutor().RespondTo("adb shell logcat -d", "line1\nline2\n")
	d := &Device{Executor: stub}

	rc, err := d.ShellStream(context.Background(), "logcat -d")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(data))
}

func TestDevice_ShellTruncated(t *testing.T) {
	stub := NewStubExecutor().RespondWith("adb shell dumpsys settings --proto",
		&Result{Stdout: "\x0a\x05abc", Truncated: true})
	d := &Device{Executor: stub}

	rc, err := d.ShellStream(context.Background(), "dumpsys settings --proto")
	require.ErrorIs(t, err, ErrTruncated)
	assert.Nil(t, rc)
	assert.Contains(t, err.Error(), "more than 5 bytes")

	_, err = d.Shell(context.Background(), "dumpsys settings --proto")
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDevice_ShellKilled(t *testing.T) {
	stub := NewStubExecutor().RespondWith("adb shell sleep 100", &Result{Killed: true, KillReason: "timeout after 1s"})
	_, err := (&Device{Executor: stub}).Shell(context.Background(), "sleep 100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout after 1s")
}

func TestDevice_Devices(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    []Entry
		wantErr error
	}{
		{
			name: "valid",
			out: `
List of devices attached
adb server version (36) doesn't match this client (35); killing...
* daemon not running. starting it now on port 5037 *
* daemon started successfully *
emulator-5554            device
production_device        unauthorized
offline_device           offline
`,
			want: []Entry{
				{Serial: "emulator-5554", State: StateOnline},
				{Serial: "production_device", State: StateUnauthorized},
				{Serial: "offline_device", State: StateOffline},
			},
		},
		{
			name: "empty",
			out: `List of devices attached
* daemon started successfully *
`,
		},
		{name: "no list", out: ``, wantErr: ErrNoDeviceList},
		{
			name:    "bad row",
			out:     "List of devices attached\nproduction_device        unauthorized invalid\n",
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "bad state",
			out:     "List of devices attached\nproduction_device        invalid\n",
			wantErr: ErrInvalidStatus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Device{Serial: "ignored", Executor: NewStubExecutor().RespondTo("adb devices", tt.out)}
			got, err := d.Devices(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStubExecutor(t *testing.T) {
	boom := errors.New("boom")
	s := NewStubExecutor().
		RespondTo("a", "1").
		RespondTo("a", "2").
		FailWith("b", boom)

	for _, want := range []string{"1", "2", "2"} {
		res, err := s.Execute(context.Background(), Command{Binary: "a"})
		require.NoError(t, err)
		assert.Equal(t, want, res.Stdout)
	}
	_, err := s.Execute(context.Background(), Command{Binary: "b"})
	assert.ErrorIs(t, err, boom)
	_, err = s.Execute(context.Background(), Command{Binary: "c"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Execute(ctx, Command{Binary: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}
