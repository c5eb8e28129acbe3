// SPDX-License-Identifier: MPL-2.0

package assemble

import (
	"errors"
	"fmt"
)

// ErrComposition is the sentinel error wrapped by CompositionError.
var ErrComposition = errors.New("composition failed")

// ErrHostBinaryPlatform reports that the running executable cannot run on
// the image platform.
var ErrHostBinaryPlatform = errors.New("host binary does not match the image platform")

// CompositionError reports a failure to place an artifact into the final
// layout.
type CompositionError struct {
	// Artifact names the dependency or stage being composed.
	Artifact string
	// Path is the file or directory involved.
	Path string
	Err  error
}

func (e *CompositionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("composing %s: %v", e.Artifact, e.Err)
	}
	return fmt.Sprintf("composing %s at %s: %v", e.Artifact, e.Path, e.Err)
}

// Unwrap returns ErrComposition and the cause.
func (e *CompositionError) Unwrap() []error { return []error{ErrComposition, e.Err} }
