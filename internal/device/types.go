// Package device runs host commands and talks to Android devices over adb.
package device

import (
	"context"
	"strings"
	"time"
)

// Executor runs host commands.
type Executor interface {
	// Execute runs cmd. A non-zero exit is reported in the Result, not as an
	// error; an error means the command could not be run at all.
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// Command is a host command to run.
type Command struct {
	Binary           string
	Arguments        []string
	WorkingDirectory string
	// Environment entries (KEY=VALUE) added to the inherited environment.
	Environment []string
	Stdin       string
	// Timeout of zero uses the executor default.
	Timeout time.Duration
	// MaxOutputBytes of zero uses the executor default. Applies to stdout
	// and stderr separately.
	MaxOutputBytes int64
}

// CommandString returns the command line for display and stub matching.
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// Result is the outcome of a command.
type Result struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	Duration   time.Duration
	Killed     bool
	KillReason string
	Truncated  bool
}

// Output returns stdout followed by stderr.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// AuditEventType classifies audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is emitted by DirectExecutor around each command.
type AuditEvent struct {
	Type      AuditEventType
	Timestamp time.Time
	Command   Command
	Result    *Result
	Err       error
}
