package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"compatsuite/internal/logging"
)

var (
	// ErrShell is returned when a device shell command exits non-zero.
	ErrShell = errors.New("shell command failed")
	// ErrNoDeviceList is returned when adb devices output has no device list.
	ErrNoDeviceList = errors.New("device list not returned")
	// ErrInvalidStatus is returned for device rows that cannot be parsed.
	ErrInvalidStatus = errors.New("invalid device status")
	// ErrTruncated is returned when command output exceeded the executor's
	// output limit.
	ErrTruncated = errors.New("output truncated")
)

const deviceListHeader = "List of devices attached"

// State is the connection state reported by adb devices.
type State string

const (
	StateOnline       State = "device"
	StateOffline      State = "offline"
	StateUnauthorized State = "unauthorized"
	StateUnknown      State = "unknown"
	StateRecovery     State = "recovery"
	StateSideload     State = "sideload"
	StateBootloader   State = "bootloader"
	StateAuthorizing  State = "authorizing"
	StateConnecting   State = "connecting"
	StateRescue       State = "rescue"
)

var knownStates = map[State]bool{
	StateOnline: true, StateOffline: true, StateUnauthorized: true,
	StateUnknown: true, StateRecovery: true, StateSideload: true,
	StateBootloader: true, StateAuthorizing: true, StateConnecting: true,
	StateRescue: true,
}

// Entry is one row of adb devices.
type Entry struct {
	Serial string
	State  State
}

// Device runs commands on one device through adb.
type Device struct {
	// Serial selects the device with -s. Empty lets adb pick the only one.
	Serial   string
	ADB      string
	Executor Executor
}

func (d *Device) adb() string {
	if d.ADB == "" {
		return "adb"
	}
	return d.ADB
}

func (d *Device) command(args ...string) Command {
	var full []string
	if d.Serial != "" {
		full = append(full, "-s", d.Serial)
	}
	return Command{Binary: d.adb(), Arguments: append(full, args...)}
}

func (d *Device) run(ctx context.Context, args ...string) (*Result, error) {
	cmd := d.command(args...)
	res, err := d.Executor.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.Killed {
		return nil, fmt.Errorf("%s: %s", cmd.CommandString(), res.KillReason)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: %s exited %d: %s",
			ErrShell, cmd.CommandString(), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if res.Truncated {
		logging.DeviceWarn("%s: output cut at %d bytes", cmd.CommandString(), len(res.Stdout))
		return nil, fmt.Errorf("%w: %s produced more than %d bytes", ErrTruncated, cmd.CommandString(), len(res.Stdout))
	}
	return res, nil
}

// Shell runs command in the device shell and returns its stdout.
func (d *Device) Shell(ctx context.Context, command string) (string, error) {
	res, err := d.run(ctx, "shell", command)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// ShellStream runs command in the device shell and returns its raw stdout.
func (d *Device) ShellStream(ctx context.Context, command string) (io.ReadCloser, error) {
	res, err := d.run(ctx, "shell", command)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(res.Stdout)), nil
}

// Devices lists the devices adb knows about.
func (d *Device) Devices(ctx context.Context) ([]Entry, error) {
	res, err := d.Executor.Execute(ctx, Command{Binary: d.adb(), Arguments: []string{"devices"}})
	if err != nil {
		return nil, err
	}
	entries, err := ParseDevices(res.Stdout)
	if err != nil {
		return nil, err
	}
	logging.DeviceDebug("adb reports %d devices", len(entries))
	return entries, nil
}

// ParseDevices parses adb devices output. Daemon chatter before or after the
// header is ignored.
func ParseDevices(out string) ([]Entry, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	found := false
	var entries []Entry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !found {
			found = line == deviceListHeader
			continue
		}
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "adb server") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, line)
		}
		state := State(fields[1])
		if !knownStates[state] {
			return nil, fmt.Errorf("%w: %s is %q", ErrInvalidStatus, fields[0], fields[1])
		}
		entries = append(entries, Entry{Serial: fields[0], State: state})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoDeviceList
	}
	return entries, nil
}
