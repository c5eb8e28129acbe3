// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestListenPort_String(t *testing.T) {
	t.Parallel()

	if got := DefaultEnginePort.String(); got != "50021" {
		t.Errorf("DefaultEnginePort.String() = %q, want %q", got, "50021")
	}
}

func TestListenPort_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port    ListenPort
		wantErr bool
	}{
		{0, true},
		{1, false},
		{80, false},
		{DefaultEnginePort, false},
		{65535, false},
		{-1, true},
		{65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.port.String(), func(t *testing.T) {
			t.Parallel()
			err := tt.port.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ListenPort(%d).Validate() error = %v, wantErr %v", tt.port, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidListenPort) {
				t.Errorf("error should wrap ErrInvalidListenPort, got: %v", err)
			}
			var lpErr *InvalidListenPortError
			if !errors.As(err, &lpErr) {
				t.Errorf("error should be *InvalidListenPortError, got: %T", err)
			}
		})
	}
}
