// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"
)

// Resolution error kinds.
const (
	KindDescriptor ErrorKind = iota + 1
	KindUnknownVariant
	KindVersion
	KindFetch
	KindChecksum
	KindArchive
	KindLayout
	KindPublish
)

// ErrResolution is the sentinel wrapped by every ResolutionError.
var ErrResolution = errors.New("artifact resolution failed")

type (
	// ErrorKind classifies a ResolutionError.
	ErrorKind int

	// ResolutionError reports why a descriptor could not be resolved.
	ResolutionError struct {
		Kind ErrorKind
		// Name is the dependency name.
		Name string
		Err  error
	}
)

func (k ErrorKind) String() string {
	switch k {
	case KindDescriptor:
		return "descriptor"
	case KindUnknownVariant:
		return "unknown variant"
	case KindVersion:
		return "version"
	case KindFetch:
		return "fetch"
	case KindChecksum:
		return "checksum"
	case KindArchive:
		return "archive"
	case KindLayout:
		return "layout"
	case KindPublish:
		return "publish"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s: %s: %v", e.Name, e.Kind, e.Err)
}

// Unwrap exposes both ErrResolution and the cause to errors.Is/As.
func (e *ResolutionError) Unwrap() []error { return []error{ErrResolution, e.Err} }

func newError(kind ErrorKind, name string, err error) *ResolutionError {
	return &ResolutionError{Kind: kind, Name: name, Err: err}
}

// layoutErrorf builds a KindLayout error.
func layoutErrorf(name, format string, args ...any) *ResolutionError {
	return newError(KindLayout, name, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first ResolutionError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
