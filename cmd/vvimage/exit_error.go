// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"vvimage/pkg/types"
)

// ExitError carries the status a vvimage command exits with. Build commands
// set Code from the failure classification. The entrypoint forwards the
// engine's own status with Engine set.
type ExitError struct {
	Code types.ExitCode
	Err  error
	// Engine marks a status forwarded from the engine process.
	Engine bool
}

func (e *ExitError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Engine:
		return fmt.Sprintf("engine exited with status %d", e.Code)
	default:
		return fmt.Sprintf("exit status %d", e.Code)
	}
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitStatus returns the process status for a command result. Errors that
// never passed through failCommand, such as flag parsing errors, exit 1.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := errors.AsType[*ExitError](err); ok {
		return int(exitErr.Code)
	}
	return 1
}
