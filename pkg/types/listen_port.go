// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// DefaultEnginePort is the well-known port the synthesis engine binds to.
const DefaultEnginePort ListenPort = 50021

// ErrInvalidListenPort is the sentinel error wrapped by InvalidListenPortError.
var ErrInvalidListenPort = errors.New("invalid listen port")

type (
	// ListenPort represents the TCP port the engine binds to.
	// Unlike an ephemeral listener, the engine must be reachable at a known
	// port, so zero is rejected. Valid values are 1–65535.
	ListenPort int

	// InvalidListenPortError is returned when a ListenPort value is
	// outside the range 1–65535.
	InvalidListenPortError struct {
		Value ListenPort
	}
)

// String returns the decimal string representation of the ListenPort.
func (p ListenPort) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error if the ListenPort is outside 1-65535.
func (p ListenPort) Validate() error {
	if p < 1 || p > 65535 {
		return &InvalidListenPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidListenPortError.
func (e *InvalidListenPortError) Error() string {
	return fmt.Sprintf("invalid listen port %d: must be in range 1-65535", e.Value)
}

// Unwrap returns ErrInvalidListenPort for errors.Is() compatibility.
func (e *InvalidListenPortError) Unwrap() error { return ErrInvalidListenPort }
