// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// transientMarkers are substrings of engine output that point at an
// environmental cause rather than a broken Dockerfile: registry and mirror
// network errors, rootless Podman OCI races and overlay storage glitches.
var transientMarkers = []string{
	"ping_group_range",
	"OCI runtime error",
	"Temporary failure resolving",
	"Could not resolve host",
	"connection timed out",
	"connection refused",
	"TLS handshake timeout",
	"toomanyrequests",
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientError reports whether a failed image build may succeed when run
// again unchanged. It only shapes the guidance attached to the error.
// Cancellation is never transient. Exit code 125 is the engine's own generic
// failure and is treated as transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if exitErr, ok := errors.AsType[*exec.ExitError](err); ok && exitErr.ExitCode() == 125 {
		return true
	}

	errStr := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
