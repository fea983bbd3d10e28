package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"compatsuite/internal/logging"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultMaxOutputBytes = 16 << 20
)

// DirectExecutor runs commands on the host with os/exec.
type DirectExecutor struct {
	Timeout        time.Duration
	MaxOutputBytes int64

	mu            sync.RWMutex
	auditCallback func(AuditEvent)
}

// NewDirectExecutor returns an executor with the given defaults. Zero values
// fall back to DefaultTimeout and DefaultMaxOutputBytes.
func NewDirectExecutor(timeout time.Duration, maxOutput int64) *DirectExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	logging.DeviceDebug("direct executor: timeout=%s, maxOutput=%d bytes", timeout, maxOutput)
	return &DirectExecutor{Timeout: timeout, MaxOutputBytes: maxOutput}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		event.Timestamp = time.Now()
		callback(event)
	}
}

// Execute runs cmd on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	logging.DeviceDebug("executing: %s", cmd.CommandString())

	timeout := e.Timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := e.MaxOutputBytes
	if cmd.MaxOutputBytes > 0 {
		maxOutput = cmd.MaxOutputBytes
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}

	e.emitAudit(AuditEvent{Type: AuditEventStart, Command: cmd})

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	c.Dir = cmd.WorkingDirectory
	if len(cmd.Environment) > 0 {
		c.Env = append(os.Environ(), cmd.Environment...)
	}
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderr := &limitedWriter{w: &stderrBuf, max: maxOutput}
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()
	result := &Result{
		ExitCode:  -1,
		Duration:  time.Since(start),
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if result.Truncated {
		logging.DeviceWarn("output of %s truncated: %d bytes discarded",
			cmd.Binary, stdout.discarded+stderr.discarded)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		logging.DeviceWarn("command killed (timeout): %s after %s", cmd.Binary, timeout)
		e.emitAudit(AuditEvent{Type: AuditEventKilled, Command: cmd, Result: result})
		return result, nil
	case errors.Is(execCtx.Err(), context.Canceled):
		result.Killed = true
		result.KillReason = "context canceled"
		e.emitAudit(AuditEvent{Type: AuditEventKilled, Command: cmd, Result: result})
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		e.emitAudit(AuditEvent{Type: AuditEventError, Command: cmd, Err: err})
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Binary, err)
	}

	e.emitAudit(AuditEvent{Type: AuditEventComplete, Command: cmd, Result: result})
	logging.DeviceDebug("%s -> exit=%d, duration=%s, stdout=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stdout))
	return result, nil
}

// limitedWriter keeps the first max bytes and silently drops the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
