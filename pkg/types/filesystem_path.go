// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrInvalidFilesystemPath is the sentinel error wrapped by InvalidFilesystemPathError.
	ErrInvalidFilesystemPath = errors.New("invalid filesystem path")

	// ErrInvalidImagePath is the sentinel error wrapped by InvalidImagePathError.
	ErrInvalidImagePath = errors.New("invalid image path")
)

type (
	// FilesystemPath represents an absolute or relative host filesystem path.
	// A valid path must be non-empty and not whitespace-only.
	FilesystemPath string

	// InvalidFilesystemPathError is returned when a FilesystemPath value is
	// empty or whitespace-only.
	InvalidFilesystemPathError struct {
		Value FilesystemPath
	}

	// ImagePath is a location inside the assembled image filesystem, always
	// slash-separated and absolute (e.g. "/opt/voicevox_core"). Artifacts are
	// normalized to these paths and the entrypoint consumes them verbatim.
	ImagePath string

	// InvalidImagePathError is returned when an ImagePath is relative,
	// unclean, or escapes the root.
	InvalidImagePathError struct {
		Value  ImagePath
		Reason string
	}
)

// String returns the string representation of the FilesystemPath.
func (p FilesystemPath) String() string { return string(p) }

// Validate returns an error if the path is empty or whitespace-only.
func (p FilesystemPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidFilesystemPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidFilesystemPathError.
func (e *InvalidFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid filesystem path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidFilesystemPath for errors.Is() compatibility.
func (e *InvalidFilesystemPathError) Unwrap() error { return ErrInvalidFilesystemPath }

// String returns the string representation of the ImagePath.
func (p ImagePath) String() string { return string(p) }

// Validate returns an error unless the path is absolute and already clean.
func (p ImagePath) Validate() error {
	s := string(p)
	switch {
	case strings.TrimSpace(s) == "":
		return &InvalidImagePathError{Value: p, Reason: "must be non-empty"}
	case !strings.HasPrefix(s, "/"):
		return &InvalidImagePathError{Value: p, Reason: "must be absolute"}
	case s == "/":
		return &InvalidImagePathError{Value: p, Reason: "must not be the filesystem root"}
	case path.Clean(s) != s:
		return &InvalidImagePathError{Value: p, Reason: "must be clean (no trailing slash, '.', or '..')"}
	}
	return nil
}

// Under maps the image path beneath a host root directory, e.g. a local
// assembly root or a build stage's export directory.
func (p ImagePath) Under(root FilesystemPath) FilesystemPath {
	return FilesystemPath(strings.TrimRight(string(root), "/") + string(p))
}

// Error implements the error interface for InvalidImagePathError.
func (e *InvalidImagePathError) Error() string {
	return fmt.Sprintf("invalid image path %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidImagePath for errors.Is() compatibility.
func (e *InvalidImagePathError) Unwrap() error { return ErrInvalidImagePath }
