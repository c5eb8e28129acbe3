// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
	"syscall"
)

const (
	// ExitBuildFailure is returned when resolution or composition fails (EX_DATAERR).
	ExitBuildFailure ExitCode = 65
	// ExitStagingFailure is returned when the entrypoint cannot prepare the
	// runtime user's home directory (EX_SOFTWARE).
	ExitStagingFailure ExitCode = 70
	// ExitLaunchFailure is returned when the engine binary cannot be
	// executed, matching a shell's "command not found".
	ExitLaunchFailure ExitCode = 127
	// ExitConfigFailure is returned for invalid build or launch configuration (EX_CONFIG).
	ExitConfigFailure ExitCode = 78

	// signalExitBase is added to the signal number when a child dies from a signal,
	// matching the convention used by POSIX shells.
	signalExitBase = 128
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems.
	// The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range (0-255).
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range (0-255).
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess returns true if the exit code indicates successful execution.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }

// ExitCodeFromWaitStatus converts a wait status into the code a shell would
// report: the exit status for normal termination, 128+signo for signal death.
// The value is passed through unchanged otherwise; no remapping happens here.
func ExitCodeFromWaitStatus(ws syscall.WaitStatus) ExitCode {
	if ws.Signaled() {
		return ExitCode(signalExitBase + int(ws.Signal()))
	}
	return ExitCode(ws.ExitStatus())
}
