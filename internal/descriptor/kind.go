// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
)

const (
	// KindCore is the closed-source inference core library.
	KindCore Kind = "core"
	// KindRuntime is the tensor runtime shared library.
	KindRuntime Kind = "runtime"
	// KindDictionary is a compiled language dictionary.
	KindDictionary Kind = "dictionary"

	// CanonicalCoreLibrary is the only file name the engine loads the core from.
	CanonicalCoreLibrary = "libcore.so"

	// RuntimeLibraryStem is the tensor runtime soname stem.
	RuntimeLibraryStem = "libonnxruntime.so"

	// RuntimeLibDir is the subdirectory of a runtime artifact holding its
	// shared objects.
	RuntimeLibDir = "lib"

	// DefaultDictionaryName is the version-independent dictionary directory name.
	DefaultDictionaryName = "open_jtalk_dic_utf_8"
)

// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
var ErrInvalidKind = errors.New("invalid artifact kind")

type (
	// Kind classifies a dependency and selects its normalization rule.
	Kind string

	// InvalidKindError is returned when a Kind value is not recognized.
	InvalidKindError struct {
		Value Kind
	}
)

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// Validate returns an error if the Kind is not one of the defined kinds.
func (k Kind) Validate() error {
	switch k {
	case KindCore, KindRuntime, KindDictionary:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// Error implements the error interface for InvalidKindError.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid artifact kind %q (valid: core, runtime, dictionary)", e.Value)
}

// Unwrap returns ErrInvalidKind for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }
