// SPDX-License-Identifier: MPL-2.0

package dict

import (
	"errors"
	"fmt"
)

// ErrDictionary is the sentinel wrapped by DictionaryError.
var ErrDictionary = errors.New("dictionary assembly failed")

// DictionaryError reports a malformed overlay entry or an unusable base.
type DictionaryError struct {
	// Path is the offending file or directory.
	Path string
	// Line is the 1-based CSV line, or 0 when not line-specific.
	Line int
	Err  error
}

func (e *DictionaryError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap exposes ErrDictionary and the cause to errors.Is/As.
func (e *DictionaryError) Unwrap() []error { return []error{ErrDictionary, e.Err} }
