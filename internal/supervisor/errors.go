// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrStaging is the sentinel error wrapped by StagingError.
	ErrStaging = errors.New("staging failed")

	// ErrLaunch is the sentinel error wrapped by LaunchError.
	ErrLaunch = errors.New("engine launch failed")

	// ErrInvalidConfig is returned for launch parameters that cannot work.
	ErrInvalidConfig = errors.New("invalid launch configuration")

	// ErrLaunchUnsupported is returned by launchers on platforms without
	// process replacement or credential switching.
	ErrLaunchUnsupported = errors.New("launch mode not supported on this platform")
)

type (
	// StagingError reports which staging step failed.
	StagingError struct {
		Step string
		Path string
		Err  error
	}

	// LaunchError reports a failure to start the engine process.
	LaunchError struct {
		Path string
		Err  error
	}
)

func (e *StagingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("staging %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("staging %s (%s): %v", e.Step, e.Path, e.Err)
}

// Unwrap returns ErrStaging and the cause.
func (e *StagingError) Unwrap() []error { return []error{ErrStaging, e.Err} }

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Path, e.Err)
}

// Unwrap returns ErrLaunch and the cause.
func (e *LaunchError) Unwrap() []error { return []error{ErrLaunch, e.Err} }
