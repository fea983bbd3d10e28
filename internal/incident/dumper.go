// Package incident fetches proto dumps from a device and checks their
// contents without generated code for the dump schemas.
package incident

import (
	"context"
	"errors"
	"fmt"
	"io"

	"compatsuite/internal/logging"

	"google.golang.org/protobuf/proto"
)

var (
	// ErrEmptyDump is returned when a dump command prints nothing.
	ErrEmptyDump = errors.New("empty dump")
	// ErrVerification is wrapped by every failed dump check.
	ErrVerification = errors.New("dump verification failed")
)

// ShellRunner runs a device shell command and streams its output.
type ShellRunner interface {
	ShellStream(ctx context.Context, command string) (io.ReadCloser, error)
}

// Dumper runs dump commands such as "dumpsys settings --proto".
type Dumper struct {
	Shell ShellRunner
}

// Raw returns the bytes printed by command.
func (d *Dumper) Raw(ctx context.Context, command string) ([]byte, error) {
	rc, err := d.Shell.ShellStream(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s output: %w", command, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDump, command)
	}
	logging.IncidentDebug("%s: %d bytes", command, len(data))
	return data, nil
}

// GetDump runs command and unmarshals its output into msg.
func (d *Dumper) GetDump(ctx context.Context, command string, msg proto.Message) error {
	data, err := d.Raw(ctx, command)
	if err != nil {
		return err
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to parse %s output: %w", command, err)
	}
	return nil
}
