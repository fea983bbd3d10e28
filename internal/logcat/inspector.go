// Package logcat finds expected lines in a device's logcat.
package logcat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"compatsuite/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval = time.Second
	DefaultMarkTimeout  = 3 * time.Second
)

// ErrNotFound is returned when the expected lines do not show up in time.
var ErrNotFound = errors.New("logcat line not found")

// ShellRunner runs a device shell command and streams its output.
type ShellRunner interface {
	ShellStream(ctx context.Context, command string) (io.ReadCloser, error)
}

// Inspector reads logcat through a ShellRunner.
type Inspector struct {
	Shell ShellRunner
	// PollInterval is the pause between logcat dumps. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration
	// MarkTimeout bounds how long ClearAndMark waits for its marker. Zero
	// means DefaultMarkTimeout.
	MarkTimeout time.Duration
}

// ClearAndMark clears logcat and logs a unique marker under tag, returning
// once the marker is visible. Clearing is unreliable on some devices, so
// callers pass the marker as the first string to AssertContainsInOrder to
// ignore older lines.
func (i *Inspector) ClearAndMark(ctx context.Context, tag string) (string, error) {
	if err := i.run(ctx, "logcat -c"); err != nil {
		return "", err
	}
	marker := ":::" + uuid.NewString()
	if err := i.run(ctx, "log -t "+tag+" "+marker); err != nil {
		return "", err
	}

	timeout := i.MarkTimeout
	if timeout <= 0 {
		timeout = DefaultMarkTimeout
	}
	if err := i.AssertContainsInOrder(ctx, tag, timeout, marker); err != nil {
		return "", err
	}
	logging.LogcatDebug("marked logcat tag %s with %s", tag, marker)
	return marker, nil
}

func (i *Inspector) run(ctx context.Context, command string) error {
	rc, err := i.Shell.ShellStream(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	drainAndClose(rc)
	return nil
}

// AssertContainsInOrder waits up to timeout for strs to appear in the logcat
// lines of tag, in order and each on its own line. Repeated strings are not
// supported.
func (i *Inspector) AssertContainsInOrder(ctx context.Context, tag string, timeout time.Duration, strs ...string) error {
	if len(strs) == 0 {
		return nil
	}
	interval := i.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	command := "logcat -v brief -d " + tag + ":* *:S"

	index := 0
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if attempt > 1 && time.Now().After(deadline) {
			break
		}

		rc, err := i.Shell.ShellStream(ctx, command)
		if err != nil {
			return fmt.Errorf("failed to read logcat: %w", err)
		}
		var found bool
		index, found, err = scan(rc, strs)
		if err != nil {
			rc.Close()
			return fmt.Errorf("failed to read logcat: %w", err)
		}
		if found {
			drainAndClose(rc)
			logging.LogcatDebug("found %d strings for %s after %d attempts", len(strs), tag, attempt)
			return nil
		}
		rc.Close()
	}

	msg := fmt.Sprintf("couldn't find %s", strs[index])
	if index > 0 {
		msg += " after " + strs[index-1]
	}
	return fmt.Errorf("%w: %s within %g seconds", ErrNotFound, msg, timeout.Seconds())
}

// scan advances through strs on each matching line and returns how far it
// got.
func scan(r io.Reader, strs []string) (int, bool, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	index := 0
	for sc.Scan() {
		if strings.Contains(sc.Text(), strs[index]) {
			index++
			if index >= len(strs) {
				return index, true, nil
			}
		}
	}
	return index, false, sc.Err()
}

func drainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	rc.Close()
}
