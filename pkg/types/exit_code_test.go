// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package types

import (
	"errors"
	"syscall"
	"testing"
)

func TestExitCodeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     ExitCode
		wantValid bool
	}{
		{name: "zero is valid", value: 0, wantValid: true},
		{name: "one is valid", value: 1, wantValid: true},
		{name: "staging failure is valid", value: ExitStagingFailure, wantValid: true},
		{name: "255 is valid", value: 255, wantValid: true},
		{name: "negative is invalid", value: -1, wantValid: false},
		{name: "256 is invalid", value: 256, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.value.Validate()
			if (err == nil) != tt.wantValid {
				t.Errorf("ExitCode(%d).Validate() error = %v, wantValid %v", tt.value, err, tt.wantValid)
			}
			if !tt.wantValid && !errors.Is(err, ErrInvalidExitCode) {
				t.Errorf("error does not wrap ErrInvalidExitCode: %v", err)
			}
		})
	}
}

func TestExitCodeIsSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ExitCode
		want bool
	}{
		{0, true},
		{1, false},
		{ExitBuildFailure, false},
		{255, false},
	}

	for _, tt := range tests {
		if got := tt.code.IsSuccess(); got != tt.want {
			t.Errorf("ExitCode(%d).IsSuccess() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestExitCodeFromWaitStatus(t *testing.T) {
	t.Parallel()

	// Linux wait status encoding: exit status in bits 8-15, signal in bits 0-6.
	tests := []struct {
		name string
		ws   syscall.WaitStatus
		want ExitCode
	}{
		{name: "clean exit", ws: syscall.WaitStatus(0), want: 0},
		{name: "exit 3", ws: syscall.WaitStatus(3 << 8), want: 3},
		{name: "exit 255", ws: syscall.WaitStatus(255 << 8), want: 255},
		{name: "killed by SIGTERM", ws: syscall.WaitStatus(syscall.SIGTERM), want: 128 + 15},
		{name: "killed by SIGKILL", ws: syscall.WaitStatus(syscall.SIGKILL), want: 128 + 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExitCodeFromWaitStatus(tt.ws); got != tt.want {
				t.Errorf("ExitCodeFromWaitStatus(%#x) = %d, want %d", uint32(tt.ws), got, tt.want)
			}
		})
	}
}

func TestExitCodeString(t *testing.T) {
	t.Parallel()

	if got := ExitCode(42).String(); got != "42" {
		t.Errorf("ExitCode(42).String() = %q, want %q", got, "42")
	}
}
